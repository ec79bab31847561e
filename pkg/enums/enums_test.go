package enums

import "testing"

func TestOrderStatusNext(t *testing.T) {
	cases := []struct {
		from OrderStatus
		want OrderStatus
		ok   bool
	}{
		{OrderStatusPendingAssignment, OrderStatusAssigned, true},
		{OrderStatusAssigned, OrderStatusCollected, true},
		{OrderStatusCollected, OrderStatusDelivered, true},
		{OrderStatusDelivered, "", false},
		{OrderStatus("lost"), "", false},
	}
	for _, tc := range cases {
		got, ok := tc.from.Next()
		if got != tc.want || ok != tc.ok {
			t.Fatalf("%s.Next() = (%q, %v), want (%q, %v)", tc.from, got, ok, tc.want, tc.ok)
		}
	}
	if !OrderStatusDelivered.IsTerminal() {
		t.Fatal("delivered must be terminal")
	}
}

func TestParseHelpers(t *testing.T) {
	if _, err := ParseOrderStatus("assigned"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParseOrderStatus("shipped"); err == nil {
		t.Fatal("expected error for unknown order status")
	}
	if _, err := ParseActorRole("admin"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ActorRoleAdmin.CanSelfRegister() {
		t.Fatal("admin must not self-register")
	}
	if !ActorRoleShopOwner.CanSelfRegister() {
		t.Fatal("shop owners self-register")
	}
	if _, err := ParseOfferStatus("pending"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParseRequestStatus("open"); err == nil {
		t.Fatal("expected error for unknown request status")
	}
	if _, err := ParseEventType("order_created"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNormalizeCategory(t *testing.T) {
	cases := map[string]Category{
		"Grocery":            CategoryGrocery,
		"  grocery ":         CategoryGrocery,
		"fashion & apparel":  CategoryFashion,
		"Toys":               CategoryOther,
		"":                   CategoryOther,
		"Books & Stationery": CategoryBooks,
	}
	for in, want := range cases {
		if got := NormalizeCategory(in); got != want {
			t.Fatalf("NormalizeCategory(%q) = %q, want %q", in, got, want)
		}
	}
	if len(Categories()) != 10 {
		t.Fatalf("expected 10 categories, got %d", len(Categories()))
	}
}

func TestAcceptanceStep(t *testing.T) {
	if !AcceptanceOfferAccepted.Reached(AcceptanceRivalsRejected) {
		t.Fatal("offer_accepted is past rivals_rejected")
	}
	if AcceptanceOrderCreated.Reached(AcceptanceCommitted) {
		t.Fatal("order_created has not committed")
	}
	if !AcceptanceOrderCreated.InFlight() || AcceptanceCommitted.InFlight() {
		t.Fatal("unexpected in-flight classification")
	}
	if AcceptanceStep("").InFlight() {
		t.Fatal("legacy orders without a marker are not in flight")
	}
}
