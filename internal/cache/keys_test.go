package cache

import "testing"

func TestKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "full key",
			key:  Key{Collection: CollectionPayments, UserID: "u1", EventID: "ev1", CategoryID: "c1"},
			want: "payments:u1:ev1:c1",
		},
		{
			name: "trailing empty parts omitted",
			key:  Key{Collection: CollectionEvents, UserID: "u1"},
			want: "events:u1",
		},
		{
			name: "inner empty part kept",
			key:  Key{Collection: CollectionCategories, EventID: "ev1"},
			want: "categories::ev1",
		},
		{
			name: "collection only",
			key:  Key{Collection: CollectionOverview},
			want: "overview",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("Key.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKeysFor_DeclaredSets(t *testing.T) {
	scope := Scope{UserID: "u1", EventID: "ev1", CategoryID: "c1"}

	tests := []struct {
		name     string
		mutation Mutation
		want     []string
	}{
		{
			name:     "add expense invalidates the whole entity chain",
			mutation: AddExpense,
			want: []string{
				"expenses:u1:ev1",
				"payments:u1:ev1:c1",
				"categories::ev1",
				"overview:u1:ev1",
				"events:u1",
			},
		},
		{
			name:     "delete expense matches add",
			mutation: DeleteExpense,
			want: []string{
				"expenses:u1:ev1",
				"payments:u1:ev1:c1",
				"categories::ev1",
				"overview:u1:ev1",
				"events:u1",
			},
		},
		{
			name:     "category mutation leaves expense lists alone",
			mutation: UpdateCategory,
			want: []string{
				"categories::ev1",
				"overview:u1:ev1",
				"events:u1",
			},
		},
		{
			name:     "event update",
			mutation: UpdateEvent,
			want: []string{
				"events:u1",
				"overview:u1:ev1",
			},
		},
		{
			name:     "event delete covers the cascade",
			mutation: DeleteEvent,
			want: []string{
				"events:u1",
				"overview:u1:ev1",
				"categories::ev1",
				"expenses:u1:ev1",
			},
		},
		{
			name:     "unknown mutation yields nothing",
			mutation: Mutation("rename-user"),
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys := KeysFor(tt.mutation, scope)
			if len(keys) != len(tt.want) {
				t.Fatalf("KeysFor(%s) returned %d keys, want %d", tt.mutation, len(keys), len(tt.want))
			}
			got := make(map[string]bool, len(keys))
			for _, k := range keys {
				got[k.String()] = true
			}
			for _, w := range tt.want {
				if !got[w] {
					t.Errorf("KeysFor(%s) missing key %q", tt.mutation, w)
				}
			}
		})
	}
}

func TestKeysFor_ScopeIsolation(t *testing.T) {
	// A mutation in one event must never invalidate another event's keys.
	a := KeysFor(AddExpense, Scope{UserID: "u1", EventID: "ev1", CategoryID: "c1"})
	for _, k := range a {
		if k.EventID != "" && k.EventID != "ev1" {
			t.Errorf("KeysFor leaked foreign event id %q in key %v", k.EventID, k)
		}
	}
}
