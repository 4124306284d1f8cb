package connectors_test

import (
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/coachly/coachd/services/connectors"
)

var _ = Describe("SessionTracker", func() {
	var (
		tracker  *connectors.SessionTracker[string]
		duration time.Duration
	)

	BeforeEach(func() {
		duration = 1 * time.Second
		tracker = connectors.NewSessionTracker[string](duration)
	})

	It("should start with no binding", func() {
		Expect(tracker.Get("test")).To(BeNil())
	})

	It("should return the bound conversation", func() {
		id := uuid.New()
		tracker.Set("test", id)
		bound := tracker.Get("test")
		Expect(bound).ToNot(BeNil())
		Expect(*bound).To(Equal(id))
	})

	It("should expire the binding after the idle window", func() {
		tracker.Set("test", uuid.New())
		time.Sleep(2 * time.Second)
		Expect(tracker.Get("test")).To(BeNil())
	})

	It("should keep the binding within the idle window", func() {
		id := uuid.New()
		tracker.Set("test", id)
		time.Sleep(500 * time.Millisecond)
		bound := tracker.Get("test")
		Expect(bound).ToNot(BeNil())
		Expect(*bound).To(Equal(id))
	})

	It("should handle multiple keys and expire old bindings", func() {
		tracker.Set("key1", uuid.New())
		tracker.Set("key2", uuid.New())

		time.Sleep(2 * time.Second)

		Expect(tracker.Get("key1")).To(BeNil())
		Expect(tracker.Get("key2")).To(BeNil())
	})

	It("should refresh the idle clock on Touch", func() {
		id := uuid.New()
		tracker.Set("test", id)
		time.Sleep(600 * time.Millisecond)
		tracker.Touch("test")
		time.Sleep(600 * time.Millisecond)
		bound := tracker.Get("test")
		Expect(bound).ToNot(BeNil())
		Expect(*bound).To(Equal(id))
	})
})
