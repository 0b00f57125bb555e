package main

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wolfman30/ace-billing/internal/appointments"
	"github.com/wolfman30/ace-billing/internal/billing"
	"github.com/wolfman30/ace-billing/internal/patients"
	"github.com/wolfman30/ace-billing/internal/progress"
	"github.com/wolfman30/ace-billing/internal/reports"
	"github.com/wolfman30/ace-billing/internal/session"
)

func (c *cli) format() string { return c.v.GetString("output") }

func (c *cli) loginCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and persist the session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := c.build(ctx)
			if err != nil {
				return err
			}
			if password == "" {
				password = c.v.GetString("password")
			}
			if password == "" {
				fmt.Fprint(c.stderr, "Password: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimSpace(line)
			}
			if err := app.Session.Login(ctx, session.Credentials{Username: username, Password: password}); err != nil {
				return err
			}
			fmt.Fprintf(c.stdout, "signed in as %s\n", app.Session.Snapshot().User.Username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "operator username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (or BILLING_PASSWORD)")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the persisted session",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.build(cmd.Context())
			if err != nil {
				return err
			}
			if err := app.Session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(c.stdout, "signed out")
			return nil
		},
	}
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in operator",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			user := app.Session.Snapshot().User
			return render(c.stdout, c.format(), user, func() *table {
				t := &table{header: []string{"USERNAME", "API"}}
				t.add(user.Username, app.Config.APIBaseURL)
				return t
			})
		},
	}
}

func (c *cli) patientsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "patients", Short: "Browse patients"}

	var page int
	var search string
	list := &cobra.Command{
		Use:   "list",
		Short: "List patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			if err := app.Patients.FetchList(cmd.Context(), patients.Query{Page: page, Search: search}); err != nil {
				return err
			}
			snap := app.Patients.Snapshot()
			return render(c.stdout, c.format(), snap.List, func() *table {
				t := &table{header: []string{"ID", "NAME", "DOB", "PROVIDERS", "STATUS"}}
				for _, p := range snap.List.List {
					status := "-"
					if len(p.Cases) > 0 {
						status = string(p.Cases[len(p.Cases)-1].Status)
					}
					t.add(p.ID, p.Name, billing.DateOnly(p.DOB), strconv.Itoa(p.ProvidersCount), status)
				}
				t.add("", fmt.Sprintf("page %d of %d", snap.List.CurrentPage, snap.List.TotalPages), "", "", "")
				return t
			})
		},
	}
	list.Flags().IntVar(&page, "page", 1, "page number (1-indexed)")
	list.Flags().StringVar(&search, "search", "", "filter by name")

	show := &cobra.Command{
		Use:   "show <patientID>",
		Short: "Show a patient with case progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			if err := app.Patients.FetchDetails(cmd.Context(), args[0]); err != nil {
				return err
			}
			d := app.Patients.Snapshot().Details
			if d == nil {
				return fmt.Errorf("patient %s not found", args[0])
			}
			return render(c.stdout, c.format(), d, func() *table {
				t := &table{header: []string{"CASE", "STATUS", "PROGRESS", "TOTAL", "FINAL"}}
				for _, cs := range d.Cases {
					v := progress.Derive(cs)
					t.add(cs.ID, string(cs.Status), v.Label, money(v.TotalBillValue), money(v.FinalAmount))
				}
				return t
			})
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

func (c *cli) casesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "cases", Short: "Work balance-reduction cases"}

	var page int
	list := &cobra.Command{
		Use:   "list <patientID>",
		Short: "List a patient's cases",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			if err := app.Cases.FetchList(cmd.Context(), args[0], page-1, 0); err != nil {
				return err
			}
			cases := app.Cases.Snapshot().List
			return render(c.stdout, c.format(), cases, func() *table {
				t := &table{header: []string{"ID", "STATUS", "PROGRESS"}}
				for _, cs := range cases.List {
					t.add(cs.ID, string(cs.Status), progress.Label(cs.CaseSteps))
				}
				return t
			})
		},
	}
	list.Flags().IntVar(&page, "page", 1, "page number (1-indexed)")

	show := &cobra.Command{
		Use:   "show <caseID>",
		Short: "Show a case with its workflow steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			if err := app.Cases.FetchCase(cmd.Context(), args[0]); err != nil {
				return err
			}
			cs, ok := app.Cases.Current()
			if !ok {
				return fmt.Errorf("case %s not found", args[0])
			}
			return c.renderCase(cs)
		},
	}

	var reduction float64
	var cheque string
	complete := &cobra.Command{
		Use:   "complete <caseID> <step>",
		Short: "Mark a workflow step complete",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			step, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("step must be a number: %w", err)
			}
			app, err := c.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			if err := app.Cases.FetchCase(cmd.Context(), args[0]); err != nil {
				return err
			}
			cs, ok := app.Cases.Current()
			if !ok {
				return fmt.Errorf("case %s not found", args[0])
			}
			req := progress.MarkRequest{CaseID: cs.ID, Step: step, ReductionAmount: reduction, ChequeNo: cheque}
			if err := app.Cases.UpdateStep(cmd.Context(), cs, req); err != nil {
				return err
			}
			updated, _ := app.Cases.Current()
			return c.renderCase(updated)
		},
	}
	complete.Flags().Float64Var(&reduction, "reduction", 0, "reduction amount (step 2)")
	complete.Flags().StringVar(&cheque, "cheque", "", "cheque number (step 4)")

	cmd.AddCommand(list, show, complete)
	return cmd
}

type caseView struct {
	Progress progress.View      `json:"progress"`
	Rows     []appointments.Row `json:"appointments"`
}

func (c *cli) renderCase(cs billing.Case) error {
	view := caseView{Progress: progress.Derive(cs), Rows: appointments.New(cs).Rows()}
	return render(c.stdout, c.format(), view, func() *table {
		t := &table{header: []string{"STEP", "TITLE", "STATE"}}
		for _, s := range view.Progress.Steps {
			t.add(strconv.Itoa(s.Index), s.Title, string(s.State))
		}
		t.add("", view.Progress.Label, "")
		t.add("", "total "+money(view.Progress.TotalBillValue), "final "+money(view.Progress.FinalAmount))
		return t
	})
}

func (c *cli) reportCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "report", Short: "Patient reports"}

	show := &cobra.Command{
		Use:   "show <patientID>",
		Short: "Show a patient's report grouped by provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			if err := app.Reports.Fetch(cmd.Context(), args[0]); err != nil {
				return err
			}
			report := app.Reports.Snapshot().Report
			if report == nil {
				return fmt.Errorf("no report for patient %s", args[0])
			}
			groups := reports.GroupByProvider(*report)
			return render(c.stdout, c.format(), groups, func() *table {
				t := &table{header: []string{"PROVIDER", "LINES", "CURRENT", "FINAL"}}
				for _, g := range groups {
					t.add(g.ProviderName, strconv.Itoa(len(g.Lines)), money(g.TotalCurrentBalance), money(g.TotalFinalBalance))
				}
				totals := reports.Total(*report)
				t.add("TOTAL", strconv.Itoa(totals.Appointments), money(totals.CurrentBalance), money(totals.FinalBalance))
				return t
			})
		},
	}

	var dir string
	download := &cobra.Command{
		Use:   "download <patientID>",
		Short: "Download the spreadsheet export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			dl, err := app.Reports.Download(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if dir == "" {
				dir = app.Config.ReportDir
			}
			path, err := reports.Save(dl, dir)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.stdout, path)
			return nil
		},
	}
	download.Flags().StringVar(&dir, "dir", "", "directory to save into")

	cmd.AddCommand(show, download)
	return cmd
}
