package cli

import (
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/creastat/consolesync/config"
	"github.com/creastat/consolesync/remote"
	"github.com/creastat/consolesync/remote/rest"
	"github.com/creastat/consolesync/remote/supabase"
	"github.com/creastat/consolesync/selection"
)

func newAPI(cfg *config.Config, logger *slog.Logger) (remote.API, error) {
	if cfg.Backend.Type == config.BackendSupabase {
		return supabase.New(supabase.Config{
			URL:         cfg.Backend.Supabase.URL,
			APIKey:      cfg.Backend.Supabase.APIKey,
			MetadataTTL: cfg.MetadataTTL(),
		})
	}
	return rest.New(rest.Config{
		BaseURL:     cfg.Backend.REST.BaseURL,
		AccessToken: cfg.Backend.REST.AccessToken,
		Timeout:     cfg.RESTTimeout(),
		Logger:      logger,
	})
}

func newSelectionStore(cfg *config.Config) (selection.Store, error) {
	switch selection.StoreType(cfg.Selection.Store) {
	case selection.StoreTypeMemory:
		return selection.NewStore(selection.StoreTypeMemory)
	case selection.StoreTypeRedis:
		options, err := redis.ParseURL(cfg.Selection.RedisURL)
		if err != nil {
			return nil, err
		}
		return selection.NewStore(selection.StoreTypeRedis,
			selection.WithRedisClient(redis.NewClient(options)),
			selection.WithRedisTTL(cfg.SelectionTTL()),
			selection.WithKeyPrefix(cfg.Selection.KeyPrefix),
		)
	default:
		return selection.NewStore(selection.StoreTypeSQLite, selection.WithSQLitePath(cfg.SelectionPath()))
	}
}
