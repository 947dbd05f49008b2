package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ErrDetailsNotFound is returned when no reference card was stored for a symbol.
var ErrDetailsNotFound = errors.New("storage: asset details not found")

const (
	upsertAssetDetailsSQL = `INSERT INTO asset_details (
        asset_symbol,
        asset_name,
        market_cap,
        volume_24h,
        circulating_supply,
        total_supply,
        max_supply,
        launch_date,
        description,
        website,
        whitepaper,
        github,
        twitter,
        reddit,
        source,
        last_updated
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
    ON CONFLICT (asset_symbol) DO UPDATE SET
        asset_name = EXCLUDED.asset_name,
        market_cap = EXCLUDED.market_cap,
        volume_24h = EXCLUDED.volume_24h,
        circulating_supply = EXCLUDED.circulating_supply,
        total_supply = EXCLUDED.total_supply,
        max_supply = EXCLUDED.max_supply,
        launch_date = EXCLUDED.launch_date,
        description = EXCLUDED.description,
        website = EXCLUDED.website,
        whitepaper = EXCLUDED.whitepaper,
        github = EXCLUDED.github,
        twitter = EXCLUDED.twitter,
        reddit = EXCLUDED.reddit,
        source = EXCLUDED.source,
        last_updated = EXCLUDED.last_updated;`

	getAssetDetailsSQL = `SELECT
        asset_symbol,
        asset_name,
        market_cap::text,
        volume_24h::text,
        circulating_supply::text,
        total_supply::text,
        max_supply::text,
        launch_date,
        description,
        website,
        whitepaper,
        github,
        twitter,
        reddit,
        source,
        last_updated
    FROM asset_details
    WHERE asset_symbol = $1;`

	addFavoriteSQL = `INSERT INTO favorites (user_id, asset_symbol, asset_name)
    VALUES ($1,$2,$3)
    ON CONFLICT (user_id, asset_symbol) DO UPDATE SET asset_name = EXCLUDED.asset_name
    RETURNING id, added_at;`

	removeFavoriteSQL = `DELETE FROM favorites WHERE user_id = $1 AND asset_symbol = $2;`

	listFavoritesSQL = `SELECT id, user_id, asset_symbol, asset_name, added_at
    FROM favorites
    WHERE user_id = $1
    ORDER BY added_at DESC, id DESC;`

	isFavoriteSQL = `SELECT EXISTS (
        SELECT 1 FROM favorites WHERE user_id = $1 AND asset_symbol = $2
    );`

	countFavoritesSQL = `SELECT COUNT(*) FROM favorites WHERE asset_symbol = $1;`

	popularAssetsSQL = `SELECT asset_symbol, MAX(asset_name), COUNT(*) AS favorite_count
    FROM favorites
    GROUP BY asset_symbol
    ORDER BY favorite_count DESC, asset_symbol
    LIMIT $1;`
)

// AssetDetailsStore persists asset reference cards.
type AssetDetailsStore interface {
	UpsertAssetDetails(ctx context.Context, d AssetDetails) error
	GetAssetDetails(ctx context.Context, symbol string) (AssetDetails, error)
}

// FavoriteStore persists per-user favorites.
type FavoriteStore interface {
	AddFavorite(ctx context.Context, fav Favorite) (Favorite, error)
	RemoveFavorite(ctx context.Context, userID int64, symbol string) (bool, error)
	ListFavorites(ctx context.Context, userID int64) ([]Favorite, error)
	IsFavorite(ctx context.Context, userID int64, symbol string) (bool, error)
	CountFavorites(ctx context.Context, symbol string) (int64, error)
	PopularAssets(ctx context.Context, limit int) ([]FavoriteCount, error)
}

// UpsertAssetDetails replaces the stored card for d.Symbol.
func (s *Store) UpsertAssetDetails(ctx context.Context, d AssetDetails) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	_, execErr := pool.Exec(ctx, upsertAssetDetailsSQL,
		d.Symbol,
		d.Name,
		nullDecimalArg(d.MarketCap),
		nullDecimalArg(d.Volume24h),
		nullDecimalArg(d.CirculatingSupply),
		nullDecimalArg(d.TotalSupply),
		nullDecimalArg(d.MaxSupply),
		d.LaunchDate,
		d.Description,
		d.Website,
		d.Whitepaper,
		d.GitHub,
		d.Twitter,
		d.Reddit,
		d.Source,
		d.UpdatedAt,
	)
	if execErr != nil {
		return fmt.Errorf("upsert asset details %s: %w", d.Symbol, execErr)
	}
	return nil
}

// GetAssetDetails loads the stored card for symbol.
func (s *Store) GetAssetDetails(ctx context.Context, symbol string) (AssetDetails, error) {
	pool, err := s.getPool()
	if err != nil {
		return AssetDetails{}, err
	}

	var (
		d       AssetDetails
		numbers [5]sql.NullString
	)
	scanErr := pool.QueryRow(ctx, getAssetDetailsSQL, symbol).Scan(
		&d.Symbol,
		&d.Name,
		&numbers[0],
		&numbers[1],
		&numbers[2],
		&numbers[3],
		&numbers[4],
		&d.LaunchDate,
		&d.Description,
		&d.Website,
		&d.Whitepaper,
		&d.GitHub,
		&d.Twitter,
		&d.Reddit,
		&d.Source,
		&d.UpdatedAt,
	)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return AssetDetails{}, ErrDetailsNotFound
	}
	if scanErr != nil {
		return AssetDetails{}, fmt.Errorf("get asset details %s: %w", symbol, scanErr)
	}

	targets := []*decimal.NullDecimal{&d.MarketCap, &d.Volume24h, &d.CirculatingSupply, &d.TotalSupply, &d.MaxSupply}
	for i, raw := range numbers {
		if !raw.Valid {
			continue
		}
		v, err := decimal.NewFromString(raw.String)
		if err != nil {
			return AssetDetails{}, fmt.Errorf("parse asset details %s: %w", symbol, err)
		}
		*targets[i] = decimal.NewNullDecimal(v)
	}
	return d, nil
}

// AddFavorite stores fav; adding an existing favorite keeps its original added_at.
func (s *Store) AddFavorite(ctx context.Context, fav Favorite) (Favorite, error) {
	pool, err := s.getPool()
	if err != nil {
		return Favorite{}, err
	}
	row := pool.QueryRow(ctx, addFavoriteSQL, fav.UserID, fav.Symbol, fav.Name)
	if scanErr := row.Scan(&fav.ID, &fav.AddedAt); scanErr != nil {
		return Favorite{}, fmt.Errorf("add favorite: %w", scanErr)
	}
	return fav, nil
}

// RemoveFavorite reports whether a row was deleted.
func (s *Store) RemoveFavorite(ctx context.Context, userID int64, symbol string) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	tag, execErr := pool.Exec(ctx, removeFavoriteSQL, userID, symbol)
	if execErr != nil {
		return false, fmt.Errorf("remove favorite: %w", execErr)
	}
	return tag.RowsAffected() > 0, nil
}

// ListFavorites returns a user's favorites, newest first.
func (s *Store) ListFavorites(ctx context.Context, userID int64) ([]Favorite, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listFavoritesSQL, userID)
	if queryErr != nil {
		return nil, fmt.Errorf("list favorites: %w", queryErr)
	}
	defer rows.Close()

	out := make([]Favorite, 0)
	for rows.Next() {
		var f Favorite
		if err := rows.Scan(&f.ID, &f.UserID, &f.Symbol, &f.Name, &f.AddedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// IsFavorite reports whether the user follows symbol.
func (s *Store) IsFavorite(ctx context.Context, userID int64, symbol string) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	var ok bool
	if scanErr := pool.QueryRow(ctx, isFavoriteSQL, userID, symbol).Scan(&ok); scanErr != nil {
		return false, fmt.Errorf("is favorite: %w", scanErr)
	}
	return ok, nil
}

// CountFavorites counts the users following symbol.
func (s *Store) CountFavorites(ctx context.Context, symbol string) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var n int64
	if scanErr := pool.QueryRow(ctx, countFavoritesSQL, symbol).Scan(&n); scanErr != nil {
		return 0, fmt.Errorf("count favorites: %w", scanErr)
	}
	return n, nil
}

// PopularAssets ranks assets by favorite count. A non-positive limit means 10.
func (s *Store) PopularAssets(ctx context.Context, limit int) ([]FavoriteCount, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	rows, queryErr := pool.Query(ctx, popularAssetsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("popular assets: %w", queryErr)
	}
	defer rows.Close()

	out := make([]FavoriteCount, 0, limit)
	for rows.Next() {
		var c FavoriteCount
		if err := rows.Scan(&c.Symbol, &c.Name, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func nullDecimalArg(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

var (
	_ AssetDetailsStore = (*Store)(nil)
	_ FavoriteStore     = (*Store)(nil)
)
