package shared

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// DocumentType tags the numbered document families.
type DocumentType string

const (
	DocInvoice DocumentType = "INV"
	DocBill    DocumentType = "BILL"
	DocPayment DocumentType = "PAY"
	DocJournal DocumentType = "JE"
)

// NextDocumentNumber allocates the next `{companyCode}-{type}-{sequence}`
// number within the posting transaction. The row lock on document_sequences
// serialises concurrent allocations per scope and type; callers supplying
// their own number never reach here.
func NextDocumentNumber(ctx context.Context, tx pgx.Tx, scope Scope, companyCode string, doc DocumentType) (string, error) {
	if companyCode == "" {
		return "", Errorf(CodeInvalidInput, "company code required for numbering")
	}
	var seq int64
	err := tx.QueryRow(ctx, `INSERT INTO document_sequences (tenant_id, company_id, doc_type, last_value)
VALUES ($1, $2, $3, 1)
ON CONFLICT (tenant_id, company_id, doc_type)
DO UPDATE SET last_value = document_sequences.last_value + 1
RETURNING last_value`, scope.TenantID, scope.CompanyID, string(doc)).Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%06d", companyCode, doc, seq), nil
}
