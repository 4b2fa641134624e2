package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"gorm.io/gorm"

	"github.com/veribill/veribill/internal/ownercontext"
	"github.com/veribill/veribill/pkg/db"
)

var numberSuffix = regexp.MustCompile(`(\d+)$`)

// nextInvoiceNumber claims the next sequential number for the owner's scope.
// The owner's directory row is locked first so concurrent claims for the same
// owner serialize; the count then comes from scanning existing numbers rather
// than a counter column, which keeps imported or manually renumbered invoices
// from breaking the sequence. A partial unique index on the owner column pair
// plus invoice_number backstops this against races on dialects without row
// locks.
func (s *Service) nextInvoiceNumber(ctx context.Context, tx *gorm.DB, owner ownercontext.Owner) (string, error) {
	lock := db.LockClause(tx)

	var (
		numbers []string
		err     error
	)
	if owner.UserID != nil {
		var lockedID int64
		if err = tx.Raw(fmt.Sprintf("SELECT id FROM user_profiles WHERE id = ?%s", lock), *owner.UserID).Scan(&lockedID).Error; err != nil {
			return "", err
		}
		err = tx.Raw("SELECT invoice_number FROM invoices WHERE owner_user_id = ?", *owner.UserID).Scan(&numbers).Error
	} else {
		var lockedID int64
		if err = tx.Raw(fmt.Sprintf("SELECT id FROM businesses WHERE id = ?%s", lock), *owner.BusinessID).Scan(&lockedID).Error; err != nil {
			return "", err
		}
		err = tx.Raw("SELECT invoice_number FROM invoices WHERE owner_business_id = ?", *owner.BusinessID).Scan(&numbers).Error
	}
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("INV-%06d", highestSequence(numbers)+1), nil
}

func highestSequence(numbers []string) int {
	max := 0
	for _, number := range numbers {
		match := numberSuffix.FindString(number)
		if match == "" {
			continue
		}
		n, err := strconv.Atoi(match)
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max
}
