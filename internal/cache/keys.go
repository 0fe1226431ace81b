package cache

import "strings"

// Collections are the cached query namespaces. A cache key is the collection
// name plus the ids that scope the query, so invalidating one scope leaves
// unrelated entities untouched.
const (
	CollectionEvents     = "events"
	CollectionCategories = "categories"
	CollectionExpenses   = "expenses"
	CollectionPayments   = "payments"
	CollectionWorkspace  = "workspace"
	CollectionOverview   = "overview"
)

// Key identifies one cached query result. Unused id fields stay empty.
type Key struct {
	Collection string
	UserID     string
	EventID    string
	CategoryID string
}

// String renders the key in the canonical "collection:user:event:category"
// form used by the underlying cache, omitting trailing empty parts.
func (k Key) String() string {
	parts := []string{k.Collection, k.UserID, k.EventID, k.CategoryID}
	last := len(parts)
	for last > 1 && parts[last-1] == "" {
		last--
	}
	return strings.Join(parts[:last], ":")
}

func EventsKey(userID string) Key {
	return Key{Collection: CollectionEvents, UserID: userID}
}

func CategoriesKey(eventID string) Key {
	return Key{Collection: CollectionCategories, EventID: eventID}
}

func ExpensesKey(userID, eventID string) Key {
	return Key{Collection: CollectionExpenses, UserID: userID, EventID: eventID}
}

func PaymentsKey(userID, eventID, categoryID string) Key {
	return Key{Collection: CollectionPayments, UserID: userID, EventID: eventID, CategoryID: categoryID}
}

func WorkspaceKey(userID string) Key {
	return Key{Collection: CollectionWorkspace, UserID: userID}
}

func OverviewKey(userID, eventID string) Key {
	return Key{Collection: CollectionOverview, UserID: userID, EventID: eventID}
}

// Mutation names every write operation the coordinator performs.
type Mutation string

const (
	AddExpense    Mutation = "add-expense"
	UpdateExpense Mutation = "update-expense"
	DeleteExpense Mutation = "delete-expense"

	AddCategory    Mutation = "add-category"
	UpdateCategory Mutation = "update-category"
	DeleteCategory Mutation = "delete-category"

	AddEvent    Mutation = "add-event"
	UpdateEvent Mutation = "update-event"
	DeleteEvent Mutation = "delete-event"

	UpdatePayment Mutation = "update-payment"
)

// Scope carries the ids of the entity a mutation touches.
type Scope struct {
	UserID     string
	EventID    string
	CategoryID string
}

// KeysFor declares which cached query results a successful mutation makes
// stale. The mapping is over-inclusive rather than under-inclusive: whenever
// in doubt a broader key is included so stale data is never silently retained.
func KeysFor(m Mutation, s Scope) []Key {
	switch m {
	case AddExpense, UpdateExpense, DeleteExpense:
		// Expense writes move category aggregates and event totals too.
		return []Key{
			ExpensesKey(s.UserID, s.EventID),
			PaymentsKey(s.UserID, s.EventID, s.CategoryID),
			CategoriesKey(s.EventID),
			OverviewKey(s.UserID, s.EventID),
			EventsKey(s.UserID),
		}
	case UpdatePayment:
		return []Key{
			PaymentsKey(s.UserID, s.EventID, s.CategoryID),
			ExpensesKey(s.UserID, s.EventID),
			CategoriesKey(s.EventID),
			OverviewKey(s.UserID, s.EventID),
			EventsKey(s.UserID),
		}
	case AddCategory, UpdateCategory, DeleteCategory:
		return []Key{
			CategoriesKey(s.EventID),
			OverviewKey(s.UserID, s.EventID),
			EventsKey(s.UserID),
		}
	case AddEvent, UpdateEvent:
		return []Key{
			EventsKey(s.UserID),
			OverviewKey(s.UserID, s.EventID),
		}
	case DeleteEvent:
		// Cascade removes categories and expenses as well.
		return []Key{
			EventsKey(s.UserID),
			OverviewKey(s.UserID, s.EventID),
			CategoriesKey(s.EventID),
			ExpensesKey(s.UserID, s.EventID),
		}
	default:
		return nil
	}
}
