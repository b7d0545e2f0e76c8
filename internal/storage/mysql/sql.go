package mysql

const upsertFavoriteSQL = `
INSERT INTO favorites
  (account_id, place_id, name, address, category)
VALUES
  (?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  name       = VALUES(name),
  address    = VALUES(address),
  category   = VALUES(category),
  updated_at = CURRENT_TIMESTAMP
`

const deleteFavoriteSQL = `
DELETE FROM favorites
WHERE account_id = ? AND place_id = ?
`

// place_id order keeps restores deterministic.
const listFavoritesSQL = `
SELECT place_id, name, address, category
FROM favorites
WHERE account_id = ?
ORDER BY place_id
`
