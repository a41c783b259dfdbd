package customer

import (
	"strings"
	"unicode"

	"vendinha/internal/domain"
)

// Identity is how sales refer to customers: there is no foreign key, only the
// name and phone typed at the till.
type Identity struct {
	Name  string
	Phone string
}

func IdentityOf(c domain.Customer) Identity {
	return Identity{Name: c.Name, Phone: c.Phone}
}

func SaleIdentity(s domain.Sale) Identity {
	return Identity{Name: s.CustomerName, Phone: s.CustomerPhone}
}

// Matches compares names trimmed and case-folded, phones by digits only.
func (id Identity) Matches(other Identity) bool {
	return normalizeName(id.Name) == normalizeName(other.Name) &&
		normalizePhone(id.Phone) == normalizePhone(other.Phone)
}

func (id Identity) Empty() bool {
	return normalizeName(id.Name) == "" && normalizePhone(id.Phone) == ""
}

func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func normalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func indexOf(customers []domain.Customer, id Identity) int {
	for i := range customers {
		if IdentityOf(customers[i]).Matches(id) {
			return i
		}
	}
	return -1
}
