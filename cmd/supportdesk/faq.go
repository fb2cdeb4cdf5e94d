package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-support-desk/internal/changefeed"
	"github.com/tbourn/go-support-desk/internal/observability"
)

func newFAQCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "faq",
		Short: "Manage the FAQ knowledge base",
	}
	cmd.AddCommand(newFAQReindexCmd(), newFAQImportCmd())
	return cmd
}

func newFAQReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Recompute the embedding of every FAQ entry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withFAQs(cmd.Context(), func(ctx context.Context, c core, logger zerolog.Logger) error {
				if c.FAQs.Embeddings == nil {
					return errors.New("reindex needs GEMINI_API_KEY")
				}
				n, err := c.FAQs.Reindex(ctx)
				if err != nil {
					return fmt.Errorf("reindex: %w", err)
				}
				logger.Info().Int("entries", n).Msg("faq reindexed")
				return nil
			})
		},
	}
}

func newFAQImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import FAQ entries from a CSV with Question and Answer columns",
		Long: "Import FAQ entries from a CSV file whose header names a Question and an Answer\n" +
			"column. Questions already in the knowledge base are skipped.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			rows, err := readFAQCSV(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			return withFAQs(cmd.Context(), func(ctx context.Context, c core, logger zerolog.Logger) error {
				existing, err := c.FAQs.List(ctx)
				if err != nil {
					return err
				}
				seen := make(map[string]bool, len(existing))
				for _, e := range existing {
					seen[questionKey(e.Question)] = true
				}

				var added, skipped int
				for _, r := range rows {
					if seen[questionKey(r.Question)] {
						skipped++
						continue
					}
					if _, err := c.FAQs.Create(ctx, r.Question, r.Answer); err != nil {
						return fmt.Errorf("line %d: %w", r.Line, err)
					}
					seen[questionKey(r.Question)] = true
					added++
				}
				logger.Info().Int("added", added).Int("skipped", skipped).Msg("faq import complete")
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d, skipped %d\n", added, skipped)
				return nil
			})
		},
	}
}

// withFAQs opens the store and the services around fn.
func withFAQs(parent context.Context, fn func(ctx context.Context, c core, logger zerolog.Logger) error) error {
	ctx, stop := signalContext(parent)
	defer stop()

	cfg, logger, flush, err := setup(ctx, observability.ComponentAPI)
	if err != nil {
		return err
	}
	defer flush()

	db, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore(db, logger)

	c, err := buildCore(ctx, cfg, db, changefeed.Nop{}, logger)
	if err != nil {
		return err
	}
	defer c.close()
	return fn(ctx, c, logger)
}

// faqRow is one CSV record. Line is where the record starts in the file.
type faqRow struct {
	Question string
	Answer   string
	Line     int
}

// readFAQCSV parses rows with non-empty Question and Answer cells. Header
// names are matched case-insensitively; other columns are ignored.
func readFAQCSV(r io.Reader) ([]faqRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty file")
		}
		return nil, err
	}
	qi, ai := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "question":
			qi = i
		case "answer":
			ai = i
		}
	}
	if qi < 0 || ai < 0 {
		return nil, errors.New("header must contain Question and Answer columns")
	}

	var rows []faqRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		if qi >= len(rec) || ai >= len(rec) {
			continue
		}
		q, a := strings.TrimSpace(rec[qi]), strings.TrimSpace(rec[ai])
		if q == "" || a == "" {
			continue
		}
		rows = append(rows, faqRow{Question: q, Answer: a, Line: line})
	}
	return rows, nil
}

func questionKey(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}
