package store

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// BackupDB writes a consistent snapshot of the database file at srcPath to
// dstPath. The database must not be open in this or another process, the
// snapshot is taken through a read-only boltdb transaction.
func BackupDB(srcPath, dstPath string) error {
	opts := bolt.Options{ReadOnly: true}
	db, err := bolt.Open(srcPath, 0660, &opts)
	if err != nil {
		return fmt.Errorf("open database read-only: %w", err)
	}
	defer db.Close()

	err = db.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(dstPath, 0660)
	})
	if err != nil {
		return fmt.Errorf("copying database: %w", err)
	}
	return nil
}
