package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coelacanth/tracker/bencode"
	"github.com/coelacanth/tracker/config"
	"github.com/coelacanth/tracker/store"
	"github.com/coelacanth/tracker/store/sqlstore"
	"github.com/coelacanth/tracker/torrent"
)

// newPublishCommand builds the "publish" subcommand: it slices a file into
// pieces, derives its info-hash, writes the resulting .torrent blob, and
// registers the torrent with the configured store so the running tracker
// can immediately serve announces/scrapes against it.
func newPublishCommand(configFilePath *string) *cobra.Command {
	var (
		pieceLength int64
		trackers    []string
		private     bool
		createdBy   string
		outputPath  string
	)

	cmd := &cobra.Command{
		Use:   "publish <file>",
		Short: "Build a .torrent for a file and register it with the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return publish(*configFilePath, args[0], pieceLength, trackers, private, createdBy, outputPath)
		},
	}

	cmd.Flags().Int64Var(&pieceLength, "piece-length", 256*1024, "piece size in bytes")
	cmd.Flags().StringArrayVar(&trackers, "tracker", nil, "tracker announce URL (repeatable; each occurrence is its own tier)")
	cmd.Flags().BoolVar(&private, "private", false, "mark the torrent private, suppressing DHT/PEX")
	cmd.Flags().StringVar(&createdBy, "created-by", "", "value of the torrent's \"created by\" field")
	cmd.Flags().StringVar(&outputPath, "output", "", "path to write the .torrent blob to (default: <file>.torrent)")

	return cmd
}

func publish(configFilePath, path string, pieceLength int64, trackers []string, private bool, createdBy, outputPath string) error {
	cfg, err := config.Open(configFilePath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	s, err := sqlstore.Open(sqlstore.Config{
		Driver: cfg.Store.Driver,
		DSN:    cfg.Store.DSN,
	})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	file, err := torrent.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	var tiers [][]string
	for _, url := range trackers {
		tiers = append(tiers, []string{url})
	}

	t, err := torrent.New(file, pieceLength,
		torrent.WithAnnounceList(tiers),
		torrent.WithPrivate(private),
		torrent.WithCreatedBy(createdBy),
	)
	if err != nil {
		return fmt.Errorf("failed to build torrent: %w", err)
	}

	infoHash, err := t.InfoHash()
	if err != nil {
		return fmt.Errorf("failed to derive info-hash: %w", err)
	}

	blob, err := t.Build(nil)
	if err != nil {
		return fmt.Errorf("failed to build .torrent: %w", err)
	}

	pieces, err := t.Pieces()
	if err != nil {
		return fmt.Errorf("failed to hash pieces: %w", err)
	}

	if outputPath == "" {
		outputPath = t.Path() + ".torrent"
	}
	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", outputPath, err)
	}
	defer out.Close()
	if err := bencode.NewEncoder(out).Encode(blob); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputPath, err)
	}

	record := store.TorrentRecord{
		InfoHash:     infoHash,
		PieceLength:  t.PieceLength(),
		Length:       t.Length(),
		Name:         t.Name(),
		Path:         t.Path(),
		Pieces:       pieces,
		AnnounceList: tiers,
		Private:      t.Private(),
		CreatedBy:    createdBy,
		Status:       store.TorrentActive,
	}
	if err := s.SaveTorrent(context.Background(), record); err != nil {
		return fmt.Errorf("failed to save torrent: %w", err)
	}

	fmt.Printf("published %x as %s\n", infoHash, outputPath)
	return nil
}
