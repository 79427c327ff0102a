package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Sternrassler/pagedseq/pkg/logging"
	"github.com/Sternrassler/pagedseq/pkg/source/redislist"
)

// seedBatch is the number of lines pushed per RPUSH.
const seedBatch = 500

func newSeedCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed KEY",
		Short: "Append lines from stdin (or a generated range) to a Redis list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(logging.LogLevel(v.GetString("log-level")), v.GetBool("log-pretty"))
			logger := logging.NewLogger(logging.ComponentExport)

			redisClient := redis.NewClient(&redis.Options{Addr: v.GetString("redis-addr")})
			defer redisClient.Close()

			count, err := cmd.Flags().GetInt("count")
			if err != nil {
				return err
			}

			var n int64
			if count > 0 {
				n, err = seedRange(cmd, redisClient, args[0], count)
			} else {
				n, err = seedLines(cmd, redisClient, args[0], cmd.InOrStdin())
			}
			if err != nil {
				return err
			}

			logger.Info().Str("key", args[0]).Int64("length", n).Msg("Seeded list")
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
	cmd.Flags().Int("count", 0, "append the numbers 0..count-1 instead of reading stdin")
	return cmd
}

func seedRange(cmd *cobra.Command, redisClient *redis.Client, key string, count int) (int64, error) {
	var n int64
	batch := make([]string, 0, seedBatch)
	for i := 0; i < count; i++ {
		batch = append(batch, strconv.Itoa(i))
		if len(batch) == seedBatch || i == count-1 {
			var err error
			if n, err = redislist.Append(cmd.Context(), redisClient, key, batch...); err != nil {
				return 0, err
			}
			batch = batch[:0]
		}
	}
	return n, nil
}

func seedLines(cmd *cobra.Command, redisClient *redis.Client, key string, r io.Reader) (int64, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	n, err := redislist.Append(cmd.Context(), redisClient, key)
	if err != nil {
		return 0, err
	}
	batch := make([]string, 0, seedBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		var err error
		n, err = redislist.Append(cmd.Context(), redisClient, key, batch...)
		batch = batch[:0]
		return err
	}

	for scanner.Scan() {
		batch = append(batch, scanner.Text())
		if len(batch) == seedBatch {
			if err := flush(); err != nil {
				return 0, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("read input: %w", err)
	}
	if err := flush(); err != nil {
		return 0, err
	}
	return n, nil
}
