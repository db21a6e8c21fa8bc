// Package journal persists scheduler decisions to a sqlite database so runs
// can be inspected and compared offline. Each (slot, cell) row carries a
// SHA3-256 digest of the decisions, which makes replays cheap to check for
// determinism.
package journal

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/sha3"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/result"
)

// ErrNotFound indicates no journal entry for the requested slot.
var ErrNotFound = errors.New("journal entry not found")

const schema = `
CREATE TABLE IF NOT EXISTS slots (
	slot   INTEGER NOT NULL,
	cc     INTEGER NOT NULL,
	digest BLOB    NOT NULL,
	pdcch  INTEGER NOT NULL,
	pdsch  INTEGER NOT NULL,
	pusch  INTEGER NOT NULL,
	pucch  INTEGER NOT NULL,
	rar    INTEGER NOT NULL,
	PRIMARY KEY (slot, cc)
);
CREATE TABLE IF NOT EXISTS grants (
	slot    INTEGER NOT NULL,
	cc      INTEGER NOT NULL,
	kind    TEXT    NOT NULL,
	rnti    INTEGER NOT NULL,
	pid     INTEGER NOT NULL,
	prbs    TEXT    NOT NULL,
	nof_prb INTEGER NOT NULL,
	mcs     INTEGER NOT NULL,
	tbs     INTEGER NOT NULL,
	retx    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS grants_rnti ON grants (rnti);
`

// Digest is the SHA3-256 of the decisions of one slot and cell.
type Digest [32]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// Compute hashes every grant of dl and ul in result order. Softbuffer
// handles are left out so identical decisions hash identically.
func Compute(dl *result.DLResult, ul *result.ULResult) Digest {
	h := sha3.New256()
	writeDL(h, dl)
	writeUL(h, ul)
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

func writeDL(w io.Writer, dl *result.DLResult) {
	if dl == nil {
		return
	}
	fmt.Fprintf(w, "dl %d %d\n", dl.Slot.ToUint(), dl.CC)
	for _, p := range dl.PDCCHDL {
		fmt.Fprintf(w, "pdcch_dl %+v\n", p.DCI)
	}
	for _, p := range dl.PDCCHUL {
		fmt.Fprintf(w, "pdcch_ul %+v\n", p.DCI)
	}
	for _, p := range dl.PDSCH {
		fmt.Fprintf(w, "pdsch %d %d %d %s %d %d %d %v\n", p.RNTI, p.RNTIType, p.PID, p.Grant, p.MCS, p.TBS, p.NofRetx, p.SubPDUs)
	}
	for _, r := range dl.RAR {
		fmt.Fprintf(w, "rar %d", r.RARNTI)
		for _, g := range r.Grants {
			fmt.Fprintf(w, " %d/%d", g.Info.TempCRNTI, g.DCI.FreqDomain)
		}
		fmt.Fprintln(w)
	}
	for _, s := range dl.SSB {
		fmt.Fprintf(w, "ssb %+v\n", s)
	}
	for _, c := range dl.CSIRS {
		fmt.Fprintf(w, "csi_rs %d\n", c.ResourceID)
	}
	fmt.Fprintf(w, "si %v\n", dl.SIBIdxs)
}

func writeUL(w io.Writer, ul *result.ULResult) {
	if ul == nil {
		return
	}
	fmt.Fprintf(w, "ul %d %d\n", ul.Slot.ToUint(), ul.CC)
	for _, p := range ul.PUSCH {
		fmt.Fprintf(w, "pusch %d %d %s %d %d %d %+v\n", p.RNTI, p.PID, p.Grant, p.MCS, p.TBS, p.NofRetx, p.UCI)
	}
	for _, p := range ul.PUCCH {
		fmt.Fprintf(w, "pucch %d %d %+v\n", p.RNTI, p.Resource, p.UCI)
	}
}

// Journal writes slot decisions to sqlite. It is safe for concurrent use.
type Journal struct {
	db *sql.DB
}

// Open creates or opens the database at path.
func Open(ctx context.Context, path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %q: %w", path, err)
	}
	// sqlite serialises writers anyway; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error { return j.db.Close() }

// Record stores the decisions of one slot and cell and returns their digest.
// Recording the same slot and cell again replaces the previous entry.
func (j *Journal) Record(ctx context.Context, dl *result.DLResult, ul *result.ULResult) (Digest, error) {
	d := Compute(dl, ul)
	slot, cc := int64(dl.Slot.ToUint()), dl.CC

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return d, fmt.Errorf("journal begin: %w", err)
	}
	defer tx.Rollback()

	var nofPUSCH, nofPUCCH int
	if ul != nil {
		nofPUSCH, nofPUCCH = len(ul.PUSCH), len(ul.PUCCH)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM grants WHERE slot = ? AND cc = ?`, slot, cc); err != nil {
		return d, fmt.Errorf("journal slot %d: %w", slot, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO slots (slot, cc, digest, pdcch, pdsch, pusch, pucch, rar) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		slot, cc, d[:], len(dl.PDCCHDL)+len(dl.PDCCHUL), len(dl.PDSCH), nofPUSCH, nofPUCCH, len(dl.RAR)); err != nil {
		return d, fmt.Errorf("journal slot %d: %w", slot, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO grants (slot, cc, kind, rnti, pid, prbs, nof_prb, mcs, tbs, retx) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return d, fmt.Errorf("journal prepare: %w", err)
	}
	defer stmt.Close()
	for _, p := range dl.PDSCH {
		if _, err := stmt.ExecContext(ctx, slot, cc, "pdsch/"+p.RNTIType.String(), p.RNTI, p.PID, p.Grant.String(), p.NofPRB, p.MCS, p.TBS, p.NofRetx); err != nil {
			return d, fmt.Errorf("journal pdsch: %w", err)
		}
	}
	if ul != nil {
		for _, p := range ul.PUSCH {
			if _, err := stmt.ExecContext(ctx, slot, cc, "pusch", p.RNTI, p.PID, p.Grant.String(), p.NofPRB, p.MCS, p.TBS, p.NofRetx); err != nil {
				return d, fmt.Errorf("journal pusch: %w", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return d, fmt.Errorf("journal commit: %w", err)
	}
	return d, nil
}

// SlotDigest returns the digest recorded for slot on cell cc.
func (j *Journal) SlotDigest(ctx context.Context, slot uint32, cc int) (Digest, error) {
	var raw []byte
	err := j.db.QueryRowContext(ctx, `SELECT digest FROM slots WHERE slot = ? AND cc = ?`, int64(slot), cc).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Digest{}, fmt.Errorf("slot %d cell %d: %w", slot, cc, ErrNotFound)
	}
	if err != nil {
		return Digest{}, fmt.Errorf("slot %d cell %d: %w", slot, cc, err)
	}
	var d Digest
	copy(d[:], raw)
	return d, nil
}

// UEStats aggregates the journal grants of one UE.
type UEStats struct {
	RNTI     uint16
	DLGrants int
	ULGrants int
	DLBits   int64
	ULBits   int64
}

// UEStats returns the grant totals of rnti across all cells.
func (j *Journal) UEStats(ctx context.Context, rnti uint16) (UEStats, error) {
	st := UEStats{RNTI: rnti}
	rows, err := j.db.QueryContext(ctx,
		`SELECT kind, COUNT(*), COALESCE(SUM(tbs), 0) FROM grants WHERE rnti = ? GROUP BY kind`, rnti)
	if err != nil {
		return st, fmt.Errorf("ue 0x%x stats: %w", rnti, err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var n int
		var bits int64
		if err := rows.Scan(&kind, &n, &bits); err != nil {
			return st, fmt.Errorf("ue 0x%x stats: %w", rnti, err)
		}
		switch kind {
		case "pusch":
			st.ULGrants += n
			st.ULBits += bits
		case "pdsch/" + result.RNTITypeC.String():
			st.DLGrants += n
			st.DLBits += bits
		}
	}
	return st, rows.Err()
}

// NofSlots returns the number of (slot, cell) entries.
func (j *Journal) NofSlots(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM slots`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count slots: %w", err)
	}
	return n, nil
}
