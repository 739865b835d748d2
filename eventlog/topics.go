package eventlog

import (
	"fmt"

	"github.com/merchstream/writeback/entity"
)

// Topic identifies one partition set of the event log: all operations of
// one kind against one entity type. Nine topics exist.
type Topic struct {
	Root   string
	Entity entity.Type
	Kind   entity.OpKind
}

// NewTopic builds the topic for (entityType, kind) under the subject root.
func NewTopic(root string, e entity.Type, k entity.OpKind) Topic {
	return Topic{Root: root, Entity: e, Kind: k}
}

// AllTopics returns the declared topic set.
func AllTopics(root string) []Topic {
	topics := make([]Topic, 0, len(entity.Types())*len(entity.Kinds()))
	for _, e := range entity.Types() {
		for _, k := range entity.Kinds() {
			topics = append(topics, NewTopic(root, e, k))
		}
	}
	return topics
}

// StartupOrder returns every topic in the order workers must attach:
// creates and updates parent-first (users before brands before products),
// deletes child-first, so referenced rows exist before their dependents
// arrive and outlive them on the way out.
func StartupOrder(root string) []Topic {
	types := entity.Types()
	topics := make([]Topic, 0, len(types)*len(entity.Kinds()))
	for _, e := range types {
		topics = append(topics, NewTopic(root, e, entity.OpCreate))
	}
	for _, e := range types {
		topics = append(topics, NewTopic(root, e, entity.OpUpdate))
	}
	for i := len(types) - 1; i >= 0; i-- {
		topics = append(topics, NewTopic(root, types[i], entity.OpDelete))
	}
	return topics
}

// Label is the short topic name used in logs and metric labels.
func (t Topic) Label() string {
	return fmt.Sprintf("%s-%s", t.Entity, t.Kind)
}

// StreamName names the backing stream.
func (t Topic) StreamName() string {
	return fmt.Sprintf("%s-%s", t.Root, t.Label())
}

// Subject matches every message on the topic regardless of entity id.
func (t Topic) Subject() string {
	return fmt.Sprintf("%s.%s.%s.>", t.Root, t.Entity, t.Kind)
}

// SubjectFor returns the publish subject for one entity. The trailing
// token keys the partition, keeping one entity's operations in order.
func (t Topic) SubjectFor(entityID string) string {
	return fmt.Sprintf("%s.%s.%s.%s", t.Root, t.Entity, t.Kind, entityID)
}

// Durable names the topic's consumer group. Instances sharing the name
// split the topic's messages between them.
func (t Topic) Durable() string {
	return t.StreamName() + "-workers"
}

// String implements fmt.Stringer.
func (t Topic) String() string { return t.Label() }

// isSubjectToken reports whether s can ride in a subject without changing
// its shape: printable ASCII, no separators or wildcards.
func isSubjectToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r <= ' ' || r > '~' || r == '.' || r == '*' || r == '>' {
			return false
		}
	}
	return true
}
