package test_utils

import (
	"strings"
	"sync"
	"testing"
	"time"
)

// Assertion is one step of a test group: either an operation (result ignored) or a case
// (must return true).
type Assertion struct {
	head         *Assertion
	id           string
	description  string
	assertion    func() bool
	shouldAssert bool
	next         *Assertion
}

type IAssertable interface {
	Then(id string, description string, assertion func() bool) IAssertable
	Do(id string, description string, operation func()) IAssertable
	Concurrently(id string, description string, actions ...func()) IAssertable
	Cases(cases []*Assertion) IAssertable
	Run(t *testing.T)
}

func NewTestCase(id string, description string, assertion func() bool) *Assertion {
	a := &Assertion{
		id:           id,
		description:  description,
		assertion:    assertion,
		shouldAssert: true,
	}
	a.head = a
	return a
}

func NewTestGroup(id string, description string) IAssertable {
	a := &Assertion{
		id:          id,
		description: description,
	}
	a.head = a
	return a
}

func (a *Assertion) append(next *Assertion) IAssertable {
	next.head = a.head
	a.next = next
	return next
}

func (a *Assertion) Then(id string, description string, assertion func() bool) IAssertable {
	return a.append(&Assertion{id: id, description: description, assertion: assertion, shouldAssert: true})
}

func (a *Assertion) Do(id string, description string, operation func()) IAssertable {
	return a.append(&Assertion{id: id, description: description, assertion: func() bool {
		operation()
		return true
	}})
}

// Concurrently runs all actions in their own goroutines and waits for them.
func (a *Assertion) Concurrently(id string, description string, actions ...func()) IAssertable {
	return a.Do(id, description, func() {
		var wg sync.WaitGroup
		for _, act := range actions {
			wg.Add(1)
			go func(action func()) {
				defer wg.Done()
				action()
			}(act)
		}
		wg.Wait()
	})
}

func (a *Assertion) Cases(cases []*Assertion) IAssertable {
	var curr IAssertable = a
	for _, c := range cases {
		if c != nil {
			curr = curr.(*Assertion).append(c)
		}
	}
	return curr
}

func (a *Assertion) Run(t *testing.T) {
	t.Helper()
	start := time.Now()
	indent := 0
	for curr := a.head; curr != nil; curr = curr.next {
		if curr.assertion == nil {
			t.Logf("%sgroup %s[%s]", indents(indent), curr.id, curr.description)
			indent += 2
			continue
		}
		if !curr.shouldAssert {
			t.Logf("%soperation %s[%s]", indents(indent), curr.id, curr.description)
			curr.assertion()
			continue
		}
		if curr.assertion() {
			t.Logf("%s%s passed", indents(indent), curr.id)
		} else {
			t.Errorf("%s%s(%s) failed", indents(indent), curr.id, curr.description)
		}
	}
	t.Logf("group finished in %s", time.Since(start))
}

func indents(level int) string {
	return strings.Repeat(" ", level)
}
