package remote

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"
)

// Client fetches and writes rows scoped to one principal.
type Client struct {
	client    *supabase.Client
	principal string
	log       *slog.Logger
}

// Options configures a Client.
type Options struct {
	URL         string
	Key         string
	AccessToken string
	Principal   string
	Logger      *slog.Logger
}

// NewClient connects to the Supabase project described by opts.
func NewClient(opts Options) (*Client, error) {
	if opts.URL == "" || opts.Key == "" {
		return nil, fmt.Errorf("remote: supabase url and key are required")
	}
	if opts.Principal == "" {
		return nil, ErrNoPrincipal
	}

	co := &supabase.ClientOptions{}
	if opts.AccessToken != "" {
		co.Headers = map[string]string{"Authorization": "Bearer " + opts.AccessToken}
	}
	client, err := supabase.NewClient(opts.URL, opts.Key, co)
	if err != nil {
		return nil, fmt.Errorf("remote: creating supabase client: %w", err)
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{client: client, principal: opts.Principal, log: log}, nil
}

// Principal returns the user id every request is scoped to.
func (c *Client) Principal() string { return c.principal }

// Fetch returns the raw JSON array of rows in table matching q.
func (c *Client) Fetch(ctx context.Context, table string, q Query) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fb := c.client.From(table).
		Select("*", "", false).
		Eq("user_id", c.principal)
	fb = applyFilters(fb, q.Filters)

	if since := q.SinceParam(); since != "" {
		fb = fb.Or(fmt.Sprintf("updated_at.gte.%s,created_at.gte.%s", since, since), "")
	}

	start := time.Now()
	data, count, err := fb.Execute()
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", table, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.log.Debug("fetched rows", "table", table, "count", count,
		"incremental", q.Since != nil, "took", time.Since(start))
	return data, nil
}

// Upsert writes row to table, inserting or replacing on id.
func (c *Client) Upsert(ctx context.Context, table string, row any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := c.client.From(table).Insert(row, true, "id", "minimal", "").Execute()
	if err != nil {
		return fmt.Errorf("writing %s: %w", table, err)
	}
	return nil
}

// SoftDelete sets deleted_at on the row with id.
func (c *Client) SoftDelete(ctx context.Context, table, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	patch := map[string]string{
		"deleted_at": at.UTC().Format(time.RFC3339Nano),
		"updated_at": at.UTC().Format(time.RFC3339Nano),
	}
	_, _, err := c.client.From(table).
		Update(patch, "minimal", "").
		Eq("id", id).
		Eq("user_id", c.principal).
		Execute()
	if err != nil {
		return fmt.Errorf("deleting %s/%s: %w", table, id, err)
	}
	return nil
}

func applyFilters(fb *postgrest.FilterBuilder, fs Filters) *postgrest.FilterBuilder {
	for _, f := range fs {
		switch f.Op {
		case OpEq:
			fb = fb.Eq(f.Column, f.Value)
		case OpNeq:
			fb = fb.Neq(f.Column, f.Value)
		case OpGte:
			fb = fb.Gte(f.Column, f.Value)
		case OpLte:
			fb = fb.Lte(f.Column, f.Value)
		case OpIs:
			fb = fb.Is(f.Column, f.Value)
		case OpNotIs:
			fb = fb.Not(f.Column, "is", f.Value)
		}
	}
	return fb
}
