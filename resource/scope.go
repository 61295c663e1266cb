package resource

import (
	"fmt"

	"saffron/lib/ftypes"
)

type Scope interface {
	ID() ftypes.RealmID
	PrefixedName(string) string
}

var _ Scope = TierScope{}

// TierScope namespaces every resource a tier owns - database names,
// sagemaker model/endpoint names, S3 prefixes - so that multiple tiers can
// share the same AWS account and database server.
type TierScope struct {
	tierID ftypes.RealmID
}

func NewTierScope(tierID ftypes.RealmID) TierScope {
	return TierScope{
		tierID: tierID,
	}
}

func (t TierScope) ID() ftypes.RealmID {
	return t.tierID
}

func (t TierScope) PrefixedName(name string) string {
	return fmt.Sprintf("t_%d_%s", t.tierID, name)
}

// HyphenatedName is PrefixedName for namespaces that reject underscores
// (sagemaker resource names, SNS topics).
func (t TierScope) HyphenatedName(name string) string {
	return fmt.Sprintf("t-%d-%s", t.tierID, name)
}
