package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var preset bool
	cmd := &cobra.Command{
		Use:   "init <gameID>",
		Short: "Start result entry for a game, seeding the first round",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			s, err := openSession(ctx, args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			if preset {
				round, err := s.engine.InitializePresetMatches(ctx)
				if err != nil {
					return err
				}
				if round == nil {
					fmt.Println("Roster size has no preset, use a generated round instead")
					return nil
				}
				fmt.Printf("Seeded %s with %d preset matches\n", round.ID, len(round.Matches))
				return nil
			}

			round, err := s.engine.InitializeDefaultRound(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Seeded %s with %d matches\n", round.ID, len(round.Matches))
			return nil
		},
	}
	cmd.Flags().BoolVar(&preset, "preset", false, "seed preset matches for 2 or 4 players")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <gameID>",
		Short: "Show sync status, pending edits and the current rounds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			s, err := openSession(ctx, args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			pending, err := s.engine.PendingOps(ctx)
			if err != nil {
				return err
			}
			flagged, err := s.syncer.ServerProblem(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Sync status:   %s\n", s.syncer.Status())
			fmt.Printf("Local version: %d\n", s.engine.Version())
			fmt.Printf("Pending ops:   %d\n", len(pending))
			if flagged {
				fmt.Println("Server state diverged, run 'resultsctl resolve'")
			}
			for _, round := range s.engine.Rounds() {
				fmt.Printf("%s (%s)\n", round.Name, round.ID)
				for _, match := range round.Matches {
					fmt.Printf("  %s  %v vs %v", match.ID, match.TeamA, match.TeamB)
					for _, set := range match.Sets {
						if set.IsOpen() {
							continue
						}
						mark := ""
						if set.IsTieBreak {
							mark = "TB "
						}
						fmt.Printf("  %s%d:%d", mark, set.TeamA, set.TeamB)
					}
					fmt.Println()
				}
			}
			return nil
		},
	}
}

func newAddRoundCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-round <gameID>",
		Short: "Generate the next round with the game's strategy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			s, err := openSession(ctx, args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			round, err := s.engine.AddRound(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Added %s with %d matches\n", round.ID, len(round.Matches))
			return nil
		},
	}
}

func newSetScoreCmd() *cobra.Command {
	var tieBreak bool
	cmd := &cobra.Command{
		Use:   "set-score <gameID> <roundID> <matchID> <setIndex> <scoreA> <scoreB>",
		Short: "Record one set's score",
		Args:  cobra.ExactArgs(6),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[3])
			if err != nil {
				return fmt.Errorf("setIndex must be a number: %w", err)
			}
			scoreA, err := strconv.Atoi(args[4])
			if err != nil {
				return fmt.Errorf("scoreA must be a number: %w", err)
			}
			scoreB, err := strconv.Atoi(args[5])
			if err != nil {
				return fmt.Errorf("scoreB must be a number: %w", err)
			}

			ctx := context.Background()
			s, err := openSession(ctx, args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.engine.UpdateSetResult(ctx, args[1], args[2], index, scoreA, scoreB, tieBreak); err != nil {
				return err
			}
			fmt.Printf("Recorded set %d as %d:%d\n", index, scoreA, scoreB)
			return nil
		},
	}
	cmd.Flags().BoolVar(&tieBreak, "tiebreak", false, "mark this set as the tie-break")
	return cmd
}

func newRemoveSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-set <gameID> <roundID> <matchID> <setIndex>",
		Short: "Remove one set from a match",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[3])
			if err != nil {
				return fmt.Errorf("setIndex must be a number: %w", err)
			}

			ctx := context.Background()
			s, err := openSession(ctx, args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.engine.RemoveSet(ctx, args[1], args[2], index); err != nil {
				return err
			}
			fmt.Printf("Removed set %d\n", index)
			return nil
		},
	}
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync <gameID>",
		Short: "Push queued edits to the server now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			s, err := openSession(ctx, args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.syncer.ForceSync(ctx); err != nil {
				return err
			}
			fmt.Printf("Synced, head version %d\n", s.engine.Version())
			return nil
		},
	}
}

func newResolveCmd() *cobra.Command {
	var keepLocal, useServer bool
	cmd := &cobra.Command{
		Use:   "resolve <gameID>",
		Short: "Resolve a sync divergence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if keepLocal == useServer {
				return fmt.Errorf("pick exactly one of --keep-local or --use-server")
			}

			ctx := context.Background()
			s, err := openSession(ctx, args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			if keepLocal {
				if err := s.syncer.SyncLocalToServer(ctx); err != nil {
					return err
				}
				fmt.Println("Local results pushed to the server")
				return nil
			}
			if err := s.syncer.EraseAndLoadFromServer(ctx); err != nil {
				return err
			}
			fmt.Println("Server results adopted, local edits discarded")
			return nil
		},
	}
	cmd.Flags().BoolVar(&keepLocal, "keep-local", false, "overwrite the server with local results")
	cmd.Flags().BoolVar(&useServer, "use-server", false, "discard local edits and reload from the server")
	return cmd
}

func newFinishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "finish <gameID>",
		Short: "Finalize the results and compute outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			s, err := openSession(ctx, args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.syncer.Finish(ctx); err != nil {
				return err
			}
			fmt.Println("Results finalized")
			return nil
		},
	}
}

func newEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <gameID>",
		Short: "Reopen finalized results for correction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			s, err := openSession(ctx, args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.syncer.Edit(ctx); err != nil {
				return err
			}
			fmt.Println("Results reopened for editing")
			return nil
		},
	}
}

func newResetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset <gameID>",
		Short: "Wipe the game's results on the server and locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("pass --yes to confirm wiping all results")
			}

			ctx := context.Background()
			s, err := openSession(ctx, args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.syncer.Reset(ctx); err != nil {
				return err
			}
			fmt.Println("Results wiped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}
