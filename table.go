package obi

import (
	"fmt"
)

type tableElement struct {
	prev  *tableElement
	next  *tableElement
	key   Value
	value Value
}

// Table is the single compound value of the language. Keys keep their
// insertion order. Tables are shared, never copied, on assignment.
type Table struct {
	buckets map[uint64][]*tableElement
	head    *tableElement
	tail    *tableElement
	count   int
}

// Returns nil on lookup failure.
func (self *Table) lookupWithHash(key Value, hash uint64) *tableElement {
	bucket, ok := self.buckets[hash]
	if !ok || len(bucket) == 0 {
		return nil
	}

	for _, element := range bucket {
		if element.key.Equal(key) {
			return element
		}
	}

	return nil
}

// Returns nil on lookup failure.
func (self *Table) lookup(key Value) *tableElement {
	return self.lookupWithHash(key, key.Hash())
}

func (self *Table) Typename() string {
	return "table"
}

func (self *Table) String() string {
	return "<table>"
}

func (self *Table) Hash() uint64 {
	return pointerHash(self)
}

func (self *Table) Equal(other Value) bool {
	othr, ok := other.(*Table)
	return ok && self == othr
}

func (self *Table) Encode(e *Encoder) error {
	if self.count == 0 {
		e.writeString("[]")
		return e.err
	}
	if e.visiting[self] {
		e.writeString("[...]")
		return e.err
	}
	e.visiting[self] = true
	defer delete(e.visiting, self)

	e.writeString("[")
	if e.indentText != nil {
		e.writeEndOfLine()
	}
	e.indentLevel += 1

	position := 0
	cur := self.head
	for cur != nil {
		e.writeIndent("")
		switch key := cur.key.(type) {
		case *Number:
			if key.data != float64(position) {
				e.writeString(fmt.Sprintf("(%s) = ", key.String()))
			}
			position += 1
		case *String:
			if isIdentifierText(key.data) {
				e.writeString(key.data + " = ")
			} else {
				key.Encode(e)
				e.writeString(" = ")
			}
		default:
			e.writeString("(")
			cur.key.Encode(e)
			e.writeString(") = ")
		}
		cur.value.Encode(e)

		if cur != self.tail {
			e.writeString(",")
			e.writeEndOfLine()
		} else if e.indentText != nil {
			e.writeEndOfLine()
		}

		cur = cur.next
	}

	e.indentLevel -= 1
	e.writeIndent("]")

	return e.err
}

func (self *Table) Count() int {
	return self.count
}

// Returns nil on lookup failure.
func (self *Table) Get(key Value) Value {
	element := self.lookup(key)
	if element == nil {
		return nil
	}
	return element.value
}

func (self *Table) Has(key Value) bool {
	return self.lookup(key) != nil
}

func (self *Table) Set(key, value Value) {
	if self.buckets == nil {
		self.buckets = make(map[uint64][]*tableElement)
	}

	hash := key.Hash()
	if self.head == nil {
		element := &tableElement{
			key:   key,
			value: value,
		}

		self.buckets[hash] = append(self.buckets[hash], element)
		self.head = element
		self.tail = element
		self.count = 1
		return
	}

	lookup := self.lookupWithHash(key, hash)
	if lookup == nil {
		element := &tableElement{
			prev:  self.tail,
			key:   key,
			value: value,
		}

		self.buckets[hash] = append(self.buckets[hash], element)
		self.tail.next = element
		self.tail = element
		self.count += 1
		return
	}

	lookup.value = value
}

func (self *Table) Remove(key Value) {
	if self.head == nil {
		return
	}

	hash := key.Hash()
	bucket, ok := self.buckets[hash]
	if !ok || len(bucket) == 0 {
		return
	}
	var lookup *tableElement
	for i := 0; i < len(bucket); i += 1 {
		if bucket[i].key.Equal(key) {
			lookup = bucket[i]
			self.buckets[hash] = append(bucket[:i], bucket[i+1:]...)
			if len(self.buckets[hash]) == 0 {
				delete(self.buckets, hash)
			}
			break
		}
	}

	if lookup != nil {
		if self.head == lookup {
			self.head = lookup.next
		}
		if self.tail == lookup {
			self.tail = lookup.prev
		}
		if lookup.prev != nil {
			lookup.prev.next = lookup.next
		}
		if lookup.next != nil {
			lookup.next.prev = lookup.prev
		}
		self.count -= 1
	}
}

// Keys returns the keys in insertion order.
func (self *Table) Keys() []Value {
	keys := make([]Value, 0, self.count)
	for cur := self.head; cur != nil; cur = cur.next {
		keys = append(keys, cur.key)
	}
	return keys
}

// Each visits every pair in insertion order until fn returns false.
func (self *Table) Each(fn func(key, value Value) bool) {
	for cur := self.head; cur != nil; cur = cur.next {
		if !fn(cur.key, cur.value) {
			return
		}
	}
}
