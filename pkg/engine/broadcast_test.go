package engine

import (
	"testing"
	"time"
)

func TestPublishNotifiesOnlyMatchingWatchers(t *testing.T) {
	vb := newVersionBroadcast()
	w1 := &watcher{key: "foo", record: 1, observed: 0}
	w2 := &watcher{key: "foo", record: 2, observed: 0}
	vb.register(w1)
	vb.register(w2)

	vb.publish("foo", 1, 1)

	if !vb.isNotified(w1) {
		t.Fatal("w1 watches (foo,1) and should be notified")
	}
	if vb.isNotified(w2) {
		t.Fatal("w2 watches (foo,2) and should not be notified by a (foo,1) publish")
	}
}

func TestPublishIgnoresVersionsNotNewerThanObserved(t *testing.T) {
	vb := newVersionBroadcast()
	w := &watcher{key: "k", record: 1, observed: 5}
	vb.register(w)

	vb.publish("k", 1, 5)
	if vb.isNotified(w) {
		t.Fatal("a publish at exactly the observed version should not notify")
	}
	vb.publish("k", 1, 6)
	if !vb.isNotified(w) {
		t.Fatal("a publish past the observed version should notify")
	}
}

func TestWaitForAnyReturnsOnNotify(t *testing.T) {
	vb := newVersionBroadcast()
	w := &watcher{key: "k", record: 1, observed: 0}
	vb.register(w)

	go func() {
		time.Sleep(10 * time.Millisecond)
		vb.publish("k", 1, 1)
	}()

	if !vb.waitForAny([]*watcher{w}, time.Second) {
		t.Fatal("waitForAny should have observed the publish within the timeout")
	}
}

func TestWaitForAnyTimesOutWithoutNotify(t *testing.T) {
	vb := newVersionBroadcast()
	w := &watcher{key: "k", record: 1, observed: 0}
	vb.register(w)

	if vb.waitForAny([]*watcher{w}, 20*time.Millisecond) {
		t.Fatal("waitForAny should time out when nothing publishes")
	}
}

func TestUnregisterStopsFurtherNotification(t *testing.T) {
	vb := newVersionBroadcast()
	w := &watcher{key: "k", record: 1, observed: 0}
	vb.register(w)
	vb.unregister(w)

	vb.publish("k", 1, 1)
	if vb.isNotified(w) {
		t.Fatal("an unregistered watcher must not be notified")
	}
}
