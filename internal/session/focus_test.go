package session

import (
	"sort"
	"strconv"
	"sync"
	"testing"
)

func TestFocusTable_Lifecycle(t *testing.T) {
	ft := NewFocusTable()
	if ft.IsAdminFocused("1", "a") {
		t.Fatal("empty table reports focus")
	}

	ft.Focus("1", "a")
	if !ft.IsAdminFocused("1", "a") || ft.IsAdminFocused("1", "b") || ft.IsAdminFocused("2", "a") {
		t.Fatal("focus not scoped to admin and issue")
	}

	ft.Focus("1", "b")
	if id, _ := ft.Active("1"); id != "b" {
		t.Fatalf("Active = %q, want b", id)
	}

	id, ok := ft.Clear("1")
	if !ok || id != "b" {
		t.Fatalf("Clear = %q,%v", id, ok)
	}
	if _, ok := ft.Clear("1"); ok {
		t.Fatal("second Clear should report nothing")
	}
}

func TestFocusTable_ClearIssue(t *testing.T) {
	ft := NewFocusTable()
	ft.Focus("1", "a")
	ft.Focus("2", "a")
	ft.Focus("3", "b")

	got := ft.ClearIssue("a")
	sort.Strings(got)
	if len(got) != 2 || got[0] != "1" || got[1] != "2" {
		t.Fatalf("ClearIssue = %v", got)
	}
	if !ft.IsAdminFocused("3", "b") {
		t.Fatal("unrelated focus dropped")
	}
}

func TestFocusTable_Concurrent(t *testing.T) {
	ft := NewFocusTable()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		chat := strconv.Itoa(i)
		go func() { defer wg.Done(); ft.Focus(chat, "x") }()
		go func() { defer wg.Done(); _ = ft.IsAdminFocused(chat, "x") }()
	}
	wg.Wait()
	for i := 0; i < 50; i++ {
		if !ft.IsAdminFocused(strconv.Itoa(i), "x") {
			t.Fatalf("admin %d lost focus", i)
		}
	}
}
