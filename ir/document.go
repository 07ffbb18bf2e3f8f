package ir

// Doc is a representation: a root node tagged with the identifier of its
// shape.
type Doc struct {
	TypeID string `json:"typeId"`
	Root   *Node  `json:"root"`
}

func NewDoc(typeID string, root *Node) Doc {
	if root == nil {
		root = Null()
	}
	return Doc{TypeID: typeID, Root: root}
}

// IsZero reports whether d was never assigned.
func (d Doc) IsZero() bool {
	return d.Root == nil && d.TypeID == ""
}

func (d Doc) Equal(o Doc) bool {
	return d.TypeID == o.TypeID && Equal(d.Root, o.Root)
}
