package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"chainproof/pkg/evidencehash"
)

type fileDigest struct {
	Path string
	Hash string
	Size int64
}

func hashFiles(paths []string) ([]fileDigest, error) {
	out := make([]fileDigest, len(paths))
	var g errgroup.Group
	g.SetLimit(8)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			f, err := os.Open(p)
			if err != nil {
				return err
			}
			defer f.Close()
			h, n, err := evidencehash.SHA256Reader(f)
			if err != nil {
				return fmt.Errorf("hash %s: %w", p, err)
			}
			out[i] = fileDigest{Path: p, Hash: h, Size: n}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func newHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <file...>",
		Short: "Print the sha256 of each file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			digests, err := hashFiles(args)
			if err != nil {
				return err
			}
			for _, d := range digests {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", d.Hash, d.Path)
			}
			return nil
		},
	}
}
