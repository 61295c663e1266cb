package ftypes

type RealmID uint32

func (t RealmID) Value() uint32 {
	return uint32(t)
}
