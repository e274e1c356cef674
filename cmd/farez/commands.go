package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/zoobzio/farez"
)

var files struct {
	response    string
	payload     string
	search      string
	offerID     string
	fareConfirm string
	addPax      string
	book        string
	workers     int
	testCase    string
	step        string
	scenario    string
	expected    string
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Validate a Search response",
	RunE: func(cmd *cobra.Command, _ []string) error {
		engine, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer engine.Close()

		resp, err := readOptional(files.response, farez.ParseSearchResponse)
		if err != nil {
			return err
		}
		payload, err := readOptional(files.payload, farez.ParseSearchPayload)
		if err != nil {
			return err
		}
		report, err := engine.ValidateSearchOffer(cmd.Context(), farez.SearchInput{
			Status:   opts.status,
			Response: resp,
			Payload:  payload,
		})
		if err != nil {
			return err
		}
		return printReports(cmd.ErrOrStderr(), report)
	},
}

var fareConfirmCmd = &cobra.Command{
	Use:   "fareconfirm",
	Short: "Validate a FareConfirm response against the selected Search offer",
	RunE: func(cmd *cobra.Command, _ []string) error {
		engine, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer engine.Close()

		resp, err := readOptional(files.response, farez.ParseFareConfirmResponse)
		if err != nil {
			return err
		}
		payload, err := readOptional(files.payload, farez.ParseSearchPayload)
		if err != nil {
			return err
		}
		offer, err := selectOffer(files.search, files.offerID)
		if err != nil {
			return err
		}
		report, err := engine.ValidateFareConfirm(cmd.Context(), farez.FareConfirmInput{
			Status:      opts.status,
			Response:    resp,
			SearchOffer: offer,
			Payload:     payload,
		})
		if err != nil {
			return err
		}
		return printReports(cmd.ErrOrStderr(), report)
	},
}

var bookCmd = &cobra.Command{
	Use:   "book",
	Short: "Validate a Book response against its FareConfirm snapshot",
	RunE: func(cmd *cobra.Command, _ []string) error {
		engine, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer engine.Close()

		resp, err := readOptional(files.response, farez.ParseBookingResponse)
		if err != nil {
			return err
		}
		snapshot, err := readOptional(files.fareConfirm, farez.ParseFareConfirmResponse)
		if err != nil {
			return err
		}
		payload, err := readOptional(files.payload, farez.ParseSearchPayload)
		if err != nil {
			return err
		}
		addPax, err := readOptional(files.addPax, farez.ParseAddPaxPayload)
		if err != nil {
			return err
		}
		offer, err := selectOffer(files.search, files.offerID)
		if err != nil {
			return err
		}
		report, err := engine.ValidateBooking(cmd.Context(), farez.BookInput{
			Status:      opts.status,
			Response:    resp,
			FareConfirm: snapshot,
			SearchOffer: offer,
			Payload:     payload,
			AddPax:      addPax,
		})
		if err != nil {
			return err
		}
		return printReports(cmd.ErrOrStderr(), report)
	},
}

var retrieveCmd = &cobra.Command{
	Use:   "retrieve",
	Short: "Validate a Retrieve response against the Book response",
	RunE: func(cmd *cobra.Command, _ []string) error {
		engine, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer engine.Close()

		resp, err := readOptional(files.response, farez.ParseBookingResponse)
		if err != nil {
			return err
		}
		book, err := readOptional(files.book, farez.ParseBookingResponse)
		if err != nil {
			return err
		}
		report, err := engine.ValidateRetrieve(cmd.Context(), farez.RetrieveInput{
			Status:   opts.status,
			Book:     book,
			Response: resp,
		})
		if err != nil {
			return err
		}
		return printReports(cmd.ErrOrStderr(), report)
	},
}

var rejectedCmd = &cobra.Command{
	Use:   "rejected",
	Short: "Validate the error response to a request the API must refuse",
	Long: `rejected checks a negative scenario: the response must carry the
rejection status and a ValidationErrors entry containing the message listed
for --scenario, or --expected when given. Messages match case-insensitively.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var stage farez.StageName
		switch files.step {
		case "search":
			stage = farez.StageSearchRejected
		case "addpax":
			stage = farez.StageAddPaxRejected
		default:
			return fmt.Errorf("unknown step %q (want search or addpax)", files.step)
		}
		engine, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer engine.Close()

		resp, err := readOptional(files.response, farez.ParseErrorResponse)
		if err != nil {
			return err
		}
		report, err := engine.ValidateRejection(cmd.Context(), farez.RejectionInput{
			Status:          opts.status,
			Stage:           stage,
			Response:        resp,
			Scenario:        files.scenario,
			ExpectedMessage: files.expected,
		})
		if err != nil {
			return err
		}
		return printReports(cmd.ErrOrStderr(), report)
	},
}

var flowCmd = &cobra.Command{
	Use:   "flow [dir...]",
	Short: "Validate whole captured booking flows, one per directory",
	Long: `flow runs a booking transaction over the bodies captured in each
directory, each step carrying what it needs from the ones before:

  search.json           Search response (required)
  search_payload.json   Search request
  fareconfirm.json      FareConfirm response
  addpax.json           AddPax request
  book.json             Book response
  retrieve.json         Retrieve response

A flow stops at its first missing step file. Directories are validated
concurrently, at most --workers at a time; with no arguments the current
directory is used. Each directory is its own test case, named after it
unless --test-case is set and only one directory is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer engine.Close()

		if len(args) == 0 {
			args = []string{"."}
		}
		snapshots := farez.NewStore[farez.Snapshot](0)
		contexts := farez.NewStore[farez.BookingContext](0)

		jobs := make([]farez.Job, len(args))
		for i, dir := range args {
			testCase := filepath.Base(filepath.Clean(dir))
			if len(args) == 1 && files.testCase != "" {
				testCase = files.testCase
			}
			tx := engine.NewTransaction(testCase, snapshots, contexts)
			dir := dir
			jobs[i] = farez.Job{
				Name: dir,
				Run: func(ctx context.Context) ([]*farez.Report, error) {
					return runFlow(ctx, tx, dir, opts.status, files.offerID)
				},
			}
		}

		batch := farez.NewBatch(files.workers)
		defer batch.Close()

		results := batch.Run(cmd.Context(), jobs...)
		w := cmd.ErrOrStderr()
		failed := false
		for _, res := range results {
			if len(results) > 1 {
				fmt.Fprintf(w, "== %s\n", res.Name)
			}
			if res.Err != nil {
				fmt.Fprintf(w, "  ERROR %v\n", res.Err)
				failed = true
				continue
			}
			if err := printReports(w, res.Reports...); err != nil {
				failed = true
			}
		}
		if failed {
			return errFailed
		}
		return nil
	},
}

// runFlow drives one transaction through the step files found in dir.
func runFlow(ctx context.Context, tx *farez.Transaction, dir string, status int, offerID string) ([]*farez.Report, error) {
	payload, err := readOptional(filepath.Join(dir, "search_payload.json"), farez.ParseSearchPayload)
	if err != nil {
		return nil, err
	}
	addPax, err := readOptional(filepath.Join(dir, "addpax.json"), farez.ParseAddPaxPayload)
	if err != nil {
		return nil, err
	}

	steps := []struct {
		file string
		run  func(body []byte) (*farez.Report, error)
	}{
		{"search.json", func(body []byte) (*farez.Report, error) {
			return tx.Search(ctx, status, body, payload, offerID)
		}},
		{"fareconfirm.json", func(body []byte) (*farez.Report, error) {
			return tx.FareConfirm(ctx, status, body)
		}},
		{"book.json", func(body []byte) (*farez.Report, error) {
			return tx.Book(ctx, status, body, addPax)
		}},
		{"retrieve.json", func(body []byte) (*farez.Report, error) {
			return tx.Retrieve(ctx, status, body)
		}},
	}

	var reports []*farez.Report
	for _, step := range steps {
		body, err := os.ReadFile(filepath.Join(dir, step.file))
		if errors.Is(err, os.ErrNotExist) {
			break
		}
		if err != nil {
			return nil, err
		}
		report, err := step.run(body)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	if len(reports) == 0 {
		return nil, fmt.Errorf("no search.json in %s", dir)
	}
	return reports, nil
}

func init() {
	for _, cmd := range []*cobra.Command{searchCmd, fareConfirmCmd, bookCmd, retrieveCmd, rejectedCmd} {
		cmd.Flags().StringVarP(&files.response, "response", "r", "", "response body JSON file")
		_ = cmd.MarkFlagRequired("response") //nolint:errcheck
	}
	for _, cmd := range []*cobra.Command{searchCmd, fareConfirmCmd, bookCmd} {
		cmd.Flags().StringVarP(&files.payload, "payload", "p", "", "Search request JSON file")
	}
	for _, cmd := range []*cobra.Command{fareConfirmCmd, bookCmd} {
		cmd.Flags().StringVar(&files.search, "search", "", "Search response JSON file holding the selected offer")
		cmd.Flags().StringVar(&files.offerID, "offer-id", "", "selected offer id (default: first offer)")
	}
	bookCmd.Flags().StringVar(&files.fareConfirm, "fareconfirm", "", "FareConfirm snapshot JSON file")
	bookCmd.Flags().StringVar(&files.addPax, "addpax", "", "AddPax request JSON file")
	retrieveCmd.Flags().StringVar(&files.book, "book", "", "Book response JSON file")
	rejectedCmd.Flags().StringVar(&files.step, "step", "search", "refused request: search or addpax")
	rejectedCmd.Flags().StringVar(&files.scenario, "scenario", "", "negative scenario name, e.g. BLANK_ORIGIN")
	rejectedCmd.Flags().StringVar(&files.expected, "expected", "", "expected error message, overriding --scenario")

	flowCmd.Flags().IntVarP(&files.workers, "workers", "w", 4, "directories validated at once")
	flowCmd.Flags().StringVar(&files.offerID, "offer-id", "", "offer to book (default: first offer)")
	flowCmd.Flags().StringVar(&files.testCase, "test-case", "", "test case id for saved booking context")
}

// readOptional parses the file at path. An empty path yields nil; an empty
// file yields nil too, which the engine reports as a missing body.
func readOptional[R any](path string, parse func([]byte) (*R, error)) (*R, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	v, err := parse(data)
	if errors.Is(err, farez.ErrNilResponse) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// selectOffer loads a Search response and returns the offer with id, or
// the first one when id is empty.
func selectOffer(path, id string) (*farez.Offer, error) {
	resp, err := readOptional(path, farez.ParseSearchResponse)
	if err != nil || resp == nil {
		return nil, err
	}
	for i := range resp.Offers {
		if id == "" || resp.Offers[i].OfferID == id {
			return &resp.Offers[i], nil
		}
	}
	return nil, fmt.Errorf("offer %q not found in %s", id, path)
}

// printReports writes every finding and a summary line per report. It
// returns errFailed when any report has error-severity failures.
func printReports(w io.Writer, reports ...*farez.Report) error {
	failed := false
	for _, r := range reports {
		for _, f := range r.Failures {
			fmt.Fprintf(w, "  %s %s\n", severityMark(f), f)
		}
		fmt.Fprintln(w, r.Summary())
		if !r.Passed() {
			failed = true
		}
	}
	if failed {
		return errFailed
	}
	return nil
}

func severityMark(f farez.Failure) string {
	switch {
	case f.Kind == farez.KindPrerequisiteSkip:
		return "SKIP"
	case f.Severity == farez.SeverityWarning:
		return "WARN"
	default:
		return "FAIL"
	}
}
