package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/relx/relx/shard"
)

var (
	indexPath  string
	lookupKey  string
	indexCodec string
)

// lookupCmd prints every record an index lists under a stable key.
var lookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Print the records a table index holds for a stable key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var forced shard.Codec
		if indexCodec != "" {
			c, err := shard.ParseCodec(indexCodec)
			if err != nil {
				return err
			}
			forced = c
		}
		entries, err := shard.LoadIndex(indexPath)
		if err != nil {
			return err
		}

		codecs := make(map[string]shard.Codec)
		found := 0
		for _, e := range entries {
			if e.StableKey != lookupKey {
				continue
			}
			c := forced
			if c == "" {
				if c = codecs[e.ShardPath]; c == "" {
					if c, err = shard.DetectCodec(e.ShardPath); err != nil {
						return err
					}
					codecs[e.ShardPath] = c
				}
			}
			rec, err := shard.ReadRecord(e, c)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(rec))
			found++
		}
		if found == 0 {
			return fmt.Errorf("%w: %s", shard.ErrRecordNotFound, lookupKey)
		}
		return nil
	},
}

func init() {
	lookupCmd.Flags().StringVarP(&indexPath, "index", "i", "", "Path to a table's index.ndjson")
	lookupCmd.Flags().StringVarP(&lookupKey, "key", "k", "", "Stable key to look up")
	lookupCmd.Flags().StringVar(&indexCodec, "codec", "", "Codec the table was written with (detected from the shards when empty)")
	_ = lookupCmd.MarkFlagRequired("index")
	_ = lookupCmd.MarkFlagRequired("key")
}
