package mysql

import (
	"context"
	"database/sql"
	"strings"

	"service_locator/internal/domain"
)

// Repo is the remote per-account favorites store.
type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) GetAll(ctx context.Context, accountID string) ([]domain.Favorite, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, domain.ErrNoSession
	}
	rows, err := r.db.QueryContext(ctx, listFavoritesSQL, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Favorite
	for rows.Next() {
		var f domain.Favorite
		if err := rows.Scan(&f.PlaceID, &f.Name, &f.Address, &f.Category); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) Set(ctx context.Context, accountID string, f domain.Favorite) error {
	if strings.TrimSpace(accountID) == "" {
		return domain.ErrNoSession
	}
	if strings.TrimSpace(f.PlaceID) == "" {
		return domain.ErrInvalidPlace
	}
	_, err := r.db.ExecContext(ctx, upsertFavoriteSQL,
		accountID,
		f.PlaceID,
		f.Name,
		f.Address,
		f.Category,
	)
	return err
}

func (r *Repo) Delete(ctx context.Context, accountID, placeID string) error {
	if strings.TrimSpace(accountID) == "" {
		return domain.ErrNoSession
	}
	_, err := r.db.ExecContext(ctx, deleteFavoriteSQL, accountID, placeID)
	return err
}
