// Package restore recreates confirmed mint records from an exported
// tokenId,wallet,category listing.
package restore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"mintgate/internal/mint/models"
)

// Row is one minted token from the export.
type Row struct {
	TokenID  int64
	Wallet   string
	Category int
}

// ParseCSV reads rows of tokenId,wallet,category. A first line whose token
// column is not a number is treated as a header.
func ParseCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 3
	reader.TrimLeadingSpace = true

	var rows []Row
	for line := 1; ; line++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: token id %q: %w", line, fields[0], err)
		}
		wallet := strings.TrimSpace(fields[1])
		if !common.IsHexAddress(wallet) {
			return nil, fmt.Errorf("line %d: wallet %q is not an address", line, wallet)
		}
		category, err := strconv.Atoi(strings.TrimSpace(fields[2]))
		if err != nil {
			return nil, fmt.Errorf("line %d: category %q: %w", line, fields[2], err)
		}
		rows = append(rows, Row{TokenID: id, Wallet: models.NormalizeAddress(wallet), Category: category})
	}
}

// Confirmer upserts a confirmed record.
type Confirmer interface {
	Confirm(ctx context.Context, category int, ev models.ConfirmationEvidence, confirmedAt int64) error
}

// TokenURI is the placeholder URI of a restored record.
func TokenURI(id int64) string {
	return "recovered-" + strconv.FormatInt(id, 10)
}

// Apply writes every row as a confirmed record and returns how many were
// written before the first failure.
func Apply(ctx context.Context, records Confirmer, rows []Row, now int64) (int, error) {
	for i, row := range rows {
		ev := models.ConfirmationEvidence{
			TokenID:   row.TokenID,
			TokenURI:  TokenURI(row.TokenID),
			Recipient: row.Wallet,
			Source:    models.SourceRestore,
		}
		if err := records.Confirm(ctx, row.Category, ev, now); err != nil {
			return i, fmt.Errorf("restore token %d: %w", row.TokenID, err)
		}
	}
	return len(rows), nil
}
