package schema

import (
	"crypto/sha256"
	"fmt"
	"sort"
)

// TableDigest pairs a table name with its digest.
type TableDigest struct {
	Table  string
	Digest string
}

// ColumnDigest returns the hex sha256 of "name:type".
func ColumnDigest(name, typeName string) string {
	sum := sha256.Sum256([]byte(name + ":" + typeName))
	return fmt.Sprintf("%x", sum)
}

// TableDigestOf returns the hex sha256 of the table name followed by the
// column digests in order.
func TableDigestOf(name string, columnDigests []string) string {
	h := sha256.New()
	h.Write([]byte(name))
	for _, d := range columnDigests {
		h.Write([]byte(d))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// TableDigests computes the digest of every table, ordered by table name.
// Columns are taken by Position.
func TableDigests(tables []Table) []TableDigest {
	sorted := append([]Table(nil), tables...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	out := make([]TableDigest, 0, len(sorted))
	for _, t := range sorted {
		cols := append([]Column(nil), t.Columns...)
		sort.SliceStable(cols, func(i, j int) bool {
			return cols[i].Position < cols[j].Position
		})
		digests := make([]string, 0, len(cols))
		for _, c := range cols {
			digests = append(digests, ColumnDigest(c.Name, c.Type))
		}
		out = append(out, TableDigest{Table: t.Name, Digest: TableDigestOf(t.Name, digests)})
	}
	return out
}

// Fingerprint folds the table digests, in table name order, into one hex
// sha256. The result depends only on table names, column names, column
// types and column order.
func Fingerprint(tables []Table) string {
	h := sha256.New()
	for _, td := range TableDigests(tables) {
		h.Write([]byte(td.Digest))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
