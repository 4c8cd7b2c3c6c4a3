package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/nurpe/carbon-credits/internal/db"
	"github.com/nurpe/carbon-credits/internal/model"
	"github.com/nurpe/carbon-credits/internal/repository"
	"github.com/nurpe/carbon-credits/internal/service"
)

var organizationsCmd = &cobra.Command{
	Use:   "organizations",
	Short: "List registered organizations and their balances",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		orgs, err := a.directory().List(cmd.Context(), a.session)
		if err != nil {
			return err
		}
		return printOrganizations(cmd.OutOrStdout(), orgs)
	},
}

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "Inspect and handle borrow requests",
}

var requestsAddress string

var requestsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List borrow requests of an address (default: own account)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		reqs, err := a.requests().List(cmd.Context(), a.session, requestsAddress)
		if err != nil {
			return err
		}
		return printRequests(cmd.OutOrStdout(), reqs)
	},
}

var (
	createSeller string
	createAmount string
)

var requestsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Ask another organization to lend tokens",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.requests().Create(cmd.Context(), a.session, createSeller, createAmount)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "request %s created (tx %s)\n", res.RequestID, res.TxHash)
		return nil
	},
}

func handleCmd(use string, approve bool) *cobra.Command {
	verb := "declined"
	if approve {
		verb = "approved"
	}
	return &cobra.Command{
		Use:   use + " <request-id>",
		Short: "Mark a pending request addressed to this account as " + verb,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.requests().Handle(cmd.Context(), a.session, args[0], approve); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "request %s %s\n", args[0], verb)
			return nil
		},
	}
}

var requestsExportOut string

var requestsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the request statement of an address as xlsx",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.requests().Export(cmd.Context(), a.session, requestsAddress)
		if err != nil {
			return err
		}
		out := requestsExportOut
		if out == "" {
			out = res.FileName
		}
		if err := os.WriteFile(out, res.Content, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
		return nil
	},
}

var claimsCmd = &cobra.Command{
	Use:   "claims",
	Short: "Inspect claim submissions",
}

var claimsUnapprovedCmd = &cobra.Command{
	Use:   "unapproved",
	Short: "List claims recorded on the ledger whose award was never approved",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if a.cfg.DB.DSN == "" {
			return errors.New("DB_DSN is required to read the claim journal")
		}
		database, err := db.New(a.cfg, a.log)
		if err != nil {
			return err
		}
		claims := service.NewClaimService(nil, nil, repository.NewSubmissionRepository(database), nil, a.cfg, a.log)
		subs, err := claims.ListUnapproved(cmd.Context())
		if err != nil {
			return err
		}
		return printSubmissions(cmd.OutOrStdout(), subs)
	},
}

func init() {
	requestsCmd.PersistentFlags().StringVar(&requestsAddress, "address", "", "ledger address (default: own account)")
	requestsCreateCmd.Flags().StringVar(&createSeller, "seller", "", "address of the lending organization")
	requestsCreateCmd.Flags().StringVar(&createAmount, "amount", "", "token amount")
	_ = requestsCreateCmd.MarkFlagRequired("seller")
	_ = requestsCreateCmd.MarkFlagRequired("amount")
	requestsExportCmd.Flags().StringVarP(&requestsExportOut, "out", "o", "", "output file (default: generated name)")

	requestsCmd.AddCommand(
		requestsListCmd,
		requestsCreateCmd,
		handleCmd("approve", true),
		handleCmd("decline", false),
		requestsExportCmd,
	)
	claimsCmd.AddCommand(claimsUnapprovedCmd)
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderRow(false).
		Headers(headers...)
}

func printOrganizations(w io.Writer, orgs []model.Organization) error {
	t := newTable("ADDRESS", "NAME", "BALANCE", "PHOTO")
	for _, org := range orgs {
		photo := "-"
		if org.HasPhoto() {
			photo = org.PhotoHash
		}
		t.Row(org.Address, org.Name, org.Balance.String(), photo)
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func printRequests(w io.Writer, reqs []model.BorrowRequest) error {
	t := newTable("ID", "BUYER", "SELLER", "AMOUNT", "PRICE", "STATUS")
	for _, r := range reqs {
		t.Row(r.ID, r.Buyer, r.PotentialSeller, r.Amount.String(), r.Price.String(), string(r.Status))
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func printSubmissions(w io.Writer, subs []model.ClaimSubmission) error {
	t := newTable("CLAIM", "ORGANIZATION", "AWARD", "SUBMITTED", "REASON")
	for _, s := range subs {
		reason := "-"
		if s.FailureReason != nil {
			reason = *s.FailureReason
		}
		t.Row(s.ClaimID, s.Organization, strconv.FormatInt(s.AwardedTokens, 10), s.CreatedAt.Format("2006-01-02 15:04"), reason)
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}
