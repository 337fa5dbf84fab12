package main

import (
	"fmt"
	"os"
	"os/user"
	"strings"

	"github.com/a-marczewski/faultline/internal/app"
	"github.com/a-marczewski/faultline/internal/fallback"
	"github.com/a-marczewski/faultline/internal/proposal"
	"github.com/spf13/cobra"
)

var proposalsCmd = &cobra.Command{
	Use:   "proposals",
	Short: "List evidence library update proposals",
	Long: `List evidence library update proposals. Use the approve and reject
subcommands to review them; approval writes the change to the library.`,
}

var approveCmd = &cobra.Command{
	Use:   "approve <proposal-id>",
	Short: "Approve a proposal and apply it to the evidence library",
	Args:  cobra.ExactArgs(1),
}

var rejectCmd = &cobra.Command{
	Use:   "reject <proposal-id>",
	Short: "Reject a proposal",
	Args:  cobra.ExactArgs(1),
}

var (
	proposalsStatus string
	reviewer        string
)

func init() {
	proposalsCmd.Flags().StringVarP(&proposalsStatus, "status", "s", string(proposal.StatusPending), "Filter by status: pending, approved, rejected, or all")
	proposalsCmd.PersistentFlags().StringVar(&reviewer, "reviewer", "", "Reviewer name (defaults to the current user)")
	proposalsCmd.AddCommand(approveCmd)
	proposalsCmd.AddCommand(rejectCmd)
}

func runProposalsCmd(a *app.App, cmd *cobra.Command, args []string) {
	status := proposal.Status(proposalsStatus)
	if proposalsStatus == "all" {
		status = ""
	}
	list, err := a.Proposals.List(cmd.Context(), status)
	if err != nil {
		fail(a, "Failed to list proposals", err)
	}
	if len(list) == 0 {
		fmt.Println("No proposals found.")
		return
	}
	for _, p := range list {
		fmt.Printf("%s  [%s] %s for %s (confidence %.2f, %s risk)\n",
			p.ID, p.Status, p.Type, p.IncidentID, p.Confidence, p.Impact.RiskLevel)
		fmt.Printf("    %s\n", p.Changes.FailureMode)
		fmt.Printf("    pattern: %s\n", p.Changes.FaultSignaturePattern)
		if p.ReviewedBy != "" {
			fmt.Printf("    reviewed by %s\n", p.ReviewedBy)
		}
	}
}

func runReviewCmd(a *app.App, cmd *cobra.Command, args []string) {
	decision := proposal.Approve
	if cmd.Name() == "reject" {
		decision = proposal.Reject
	}
	name := reviewer
	if name == "" {
		if u, err := user.Current(); err == nil {
			name = u.Username
		} else {
			name = os.Getenv("USER")
		}
	}

	p, err := a.ReviewProposal(cmd.Context(), args[0], decision, name)
	if err != nil {
		fail(a, "Failed to review proposal", err)
	}
	fmt.Printf("✅ Proposal %s %s by %s\n", p.ID, p.Status, p.ReviewedBy)
}

var escalationsCmd = &cobra.Command{
	Use:   "escalations",
	Short: "List SME escalation tickets",
}

var escalationsStatus string

func init() {
	escalationsCmd.Flags().StringVarP(&escalationsStatus, "status", "s", fallback.TicketPending, "Filter by ticket status, or all")
}

func runEscalationsCmd(a *app.App, cmd *cobra.Command, args []string) {
	status := escalationsStatus
	if status == "all" {
		status = ""
	}
	tickets, err := a.Tickets.List(cmd.Context(), status)
	if err != nil {
		fail(a, "Failed to list escalations", err)
	}
	if len(tickets) == 0 {
		fmt.Println("No escalations found.")
		return
	}
	for _, t := range tickets {
		fmt.Printf("%s  [%s] %s, confidence %d%%, %s\n", t.ID, t.Urgency, t.IncidentID, t.Confidence, t.CreatedAt.Format("2006-01-02 15:04"))
		fmt.Printf("    %s\n", t.Reason)
		fmt.Printf("    expertise: %s\n", strings.Join(t.Expertise, ", "))
	}
}
