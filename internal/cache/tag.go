package cache

import "fmt"

// ListID is the tag id standing for "every list of this type".
const ListID = "LIST"

// Tag labels cached results. Matching is exact on both fields.
type Tag struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func ListTag(typ string) Tag {
	return Tag{Type: typ, ID: ListID}
}

func IDTag(typ, id string) Tag {
	return Tag{Type: typ, ID: id}
}

func (t Tag) String() string {
	return fmt.Sprintf("%s/%s", t.Type, t.ID)
}

func intersects(provided, invalidated []Tag) bool {
	for _, p := range provided {
		for _, i := range invalidated {
			if p == i {
				return true
			}
		}
	}
	return false
}
