package sqldb

import "context"

const deleteAllFileEntries = `DELETE FROM file_entries`

func (q *Queries) DeleteAllFileEntries(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteAllFileEntries)
	return err
}

const deleteAllSnapshots = `DELETE FROM snapshots`

func (q *Queries) DeleteAllSnapshots(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteAllSnapshots)
	return err
}
