package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/contrib/rews"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/pkg/logger"
	"github.com/surrealdb/surrealdb.go/surrealcbor"

	"github.com/totalityengine/api/internal/config"
)

// GraphStore mirrors a small derived graph of each analysis into SurrealDB:
// track and artist nodes, a performed edge, a vibe concept node and a
// has_vibe edge. Every write is an idempotent upsert, so re-running a mirror
// for the same track is harmless.
type GraphStore struct {
	conn *rews.Connection[*gorillaws.Connection]
	db   *surrealdb.DB
}

const graphSchema = `
DEFINE TABLE IF NOT EXISTS track SCHEMALESS;
DEFINE TABLE IF NOT EXISTS artist SCHEMALESS;
DEFINE TABLE IF NOT EXISTS concept SCHEMALESS;
DEFINE TABLE IF NOT EXISTS performed TYPE RELATION FROM artist TO track;
DEFINE TABLE IF NOT EXISTS has_vibe TYPE RELATION FROM track TO concept;
DEFINE INDEX IF NOT EXISTS performed_unique ON performed COLUMNS in, out UNIQUE;
DEFINE INDEX IF NOT EXISTS has_vibe_unique ON has_vibe COLUMNS in, out UNIQUE;
`

// NewGraphStore connects to SurrealDB over an auto-reconnecting WebSocket and
// ensures the mirror schema exists.
func NewGraphStore(ctx context.Context, cfg config.GraphConfig) (*GraphStore, error) {
	sdkLogger := logger.New(slog.Default().Handler())
	codec := surrealcbor.New()

	baseURL := strings.TrimSuffix(cfg.URL, "/rpc")
	conn := rews.New(
		func(ctx context.Context) (*gorillaws.Connection, error) {
			return gorillaws.New(&connection.Config{
				BaseURL:     baseURL,
				Marshaler:   codec,
				Unmarshaler: codec,
				Logger:      sdkLogger,
			}), nil
		},
		5*time.Second,
		codec,
		sdkLogger,
	)

	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect graph store: %w", err)
	}

	db, err := surrealdb.FromConnection(ctx, conn)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("graph store from connection: %w", err)
	}

	if _, err = db.SignIn(ctx, surrealdb.Auth{
		Username: cfg.Username,
		Password: cfg.Password,
	}); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("graph store signin: %w", err)
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("graph store use: %w", err)
	}

	if _, err := surrealdb.Query[any](ctx, db, graphSchema, nil); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("graph store schema: %w", err)
	}

	return &GraphStore{conn: conn, db: db}, nil
}

func (g *GraphStore) Close(ctx context.Context) error {
	return g.conn.Close(ctx)
}

// TrackMirror is the derived projection written for one analyzed track.
type TrackMirror struct {
	TrackID    string
	Title      string
	ArtistID   string
	Vibe       string
	Dissonance float64
}

// conceptName strips any parenthetical qualifier from a vibe descriptor,
// e.g. "aligned joyful (high confidence)" -> "aligned joyful".
func conceptName(vibe string) string {
	if i := strings.Index(vibe, "("); i >= 0 {
		vibe = vibe[:i]
	}
	return strings.TrimSpace(vibe)
}

// MirrorTrack upserts the track/artist/concept nodes and their edges. All
// records are keyed by stable ids so repeated mirrors converge on the same
// graph.
func (g *GraphStore) MirrorTrack(ctx context.Context, m TrackMirror) error {
	vars := map[string]any{
		"track_id":   m.TrackID,
		"title":      m.Title,
		"artist_id":  m.ArtistID,
		"vibe":       m.Vibe,
		"dissonance": m.Dissonance,
	}

	_, err := surrealdb.Query[any](ctx, g.db, `
		UPSERT type::record("track", $track_id) SET
			title = $title,
			vibe = $vibe,
			dissonance = $dissonance,
			mirrored_at = time::now();
		UPSERT type::record("artist", $artist_id) SET id_str = $artist_id;
		RELATE type::record("artist", $artist_id)->performed->type::record("track", $track_id);
	`, vars)
	if err != nil {
		return fmt.Errorf("mirror track %s: %w", m.TrackID, err)
	}

	if m.Vibe == "" {
		return nil
	}
	concept := conceptName(m.Vibe)
	_, err = surrealdb.Query[any](ctx, g.db, `
		UPSERT type::record("concept", $name) SET name = $name;
		RELATE type::record("track", $track_id)->has_vibe->type::record("concept", $name);
	`, map[string]any{"name": concept, "track_id": m.TrackID})
	if err != nil {
		return fmt.Errorf("mirror vibe concept %q: %w", concept, err)
	}
	return nil
}

// ArtistCentrality returns the artist's share of performed edges across the
// whole mirror, a cheap degree-centrality stand-in. Unknown artists score 0.
func (g *GraphStore) ArtistCentrality(ctx context.Context, artistID string) (float64, error) {
	type countRow struct {
		Performed int `json:"performed"`
		Total     int `json:"total"`
	}
	results, err := surrealdb.Query[countRow](ctx, g.db, `
		RETURN {
			performed: (SELECT count() FROM performed WHERE in = type::record("artist", $artist_id) GROUP ALL)[0].count ?? 0,
			total: (SELECT count() FROM performed GROUP ALL)[0].count ?? 0
		}
	`, map[string]any{"artist_id": artistID})
	if err != nil {
		return 0, fmt.Errorf("artist centrality %s: %w", artistID, err)
	}
	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	row := (*results)[0].Result
	if row.Total == 0 {
		return 0, nil
	}
	return float64(row.Performed) / float64(row.Total), nil
}
