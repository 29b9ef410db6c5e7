package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/tirumala-karthikeya/chat-pro/internal/repository"
	"github.com/tirumala-karthikeya/chat-pro/pkg/logger"
)

// Result summarises one copy run.
type Result struct {
	SourceCount int `json:"source_count"`
	Migrated    int `json:"migrated"`
	Failed      int `json:"failed"`
	TargetCount int `json:"target_count"`
}

// OK reports whether every source record reached the target.
func (r Result) OK() bool { return r.Migrated == r.SourceCount }

// Run copies every chatbot from src to dst. Both stores must already be
// connected. When backupPath is set the source records are written there
// as JSON before anything is copied.
func Run(ctx context.Context, src, dst repository.Store, backupPath string, log *logger.Logger) (Result, error) {
	var res Result

	bots, err := src.List(ctx)
	if err != nil {
		return res, fmt.Errorf("read %s: %w", src.Name(), err)
	}
	res.SourceCount = len(bots)
	if len(bots) == 0 {
		log.Warn("No chatbots found in source, nothing to migrate", "source", src.Name())
		return res, nil
	}
	log.Info("Found chatbots to migrate", "source", src.Name(), "count", len(bots))

	if backupPath != "" {
		b, err := json.MarshalIndent(bots, "", "  ")
		if err != nil {
			return res, err
		}
		if err := os.WriteFile(backupPath, b, 0o600); err != nil {
			return res, fmt.Errorf("write backup: %w", err)
		}
		log.Info("Wrote source backup", "path", backupPath)
	}

	for i := range bots {
		bot := bots[i]
		if bot.UniqueID == "" {
			log.Warn("Chatbot has no uniqueId, skipping", "name", bot.Name)
			res.Failed++
			continue
		}
		if err := dst.Create(ctx, &bot); err != nil {
			log.LogError(err, "Failed to migrate chatbot", "unique_id", bot.UniqueID, "name", bot.Name)
			res.Failed++
			continue
		}
		log.Info("Migrated chatbot", "unique_id", bot.UniqueID, "name", bot.Name)
		res.Migrated++
	}

	after, err := dst.List(ctx)
	if err != nil {
		return res, fmt.Errorf("verify %s: %w", dst.Name(), err)
	}
	res.TargetCount = len(after)
	return res, nil
}
