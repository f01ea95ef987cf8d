package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"aide/internal/skills"
)

var skillsAll bool

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "Inspect discovered skills",
}

var skillsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List skills with their source and availability",
	RunE:  runSkillsList,
}

var skillsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print the XML capability manifest handed to the agent",
	RunE:  runSkillsSummary,
}

func init() {
	skillsListCmd.Flags().BoolVar(&skillsAll, "all", false, "Include skills whose requirements are not met")
	skillsCmd.AddCommand(skillsListCmd)
	skillsCmd.AddCommand(skillsSummaryCmd)
}

func newLoader() *skills.Loader {
	return skills.NewLoader(cfg.WorkspaceSkillsDir(), cfg.Skills.BuiltinDir, logger.Named("skills"))
}

func runSkillsList(cmd *cobra.Command, args []string) error {
	loader := newLoader()

	refs := loader.ListSkills(!skillsAll)
	if len(refs) == 0 {
		fmt.Println("no skills")
		return nil
	}

	for _, ref := range refs {
		meta := loader.Meta(ref.Name)
		status := "available"
		if !skills.CheckRequirements(meta.Requires) {
			status = "unavailable: " + skills.MissingRequirements(meta.Requires)
		}
		fmt.Printf("%-20s  %-10s  %s\n", ref.Name, ref.Source, status)
	}
	return nil
}

func runSkillsSummary(cmd *cobra.Command, args []string) error {
	summary := newLoader().BuildSkillsSummary()
	if summary == "" {
		fmt.Println("no skills")
		return nil
	}
	fmt.Println(summary)
	return nil
}
