package enums

import "fmt"

// ActorRole discriminates the users collection.
type ActorRole string

const (
	ActorRoleCustomer        ActorRole = "customer"
	ActorRoleShopOwner       ActorRole = "shop_owner"
	ActorRoleDeliveryPartner ActorRole = "delivery_partner"
	ActorRoleAdmin           ActorRole = "admin"
)

var validActorRoles = []ActorRole{
	ActorRoleCustomer,
	ActorRoleShopOwner,
	ActorRoleDeliveryPartner,
	ActorRoleAdmin,
}

// String implements fmt.Stringer.
func (r ActorRole) String() string {
	return string(r)
}

// IsValid reports whether the role is one of the known actor roles.
func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// CanSelfRegister is false for admin; the admin account is provisioned out of band.
func (r ActorRole) CanSelfRegister() bool {
	return r.IsValid() && r != ActorRoleAdmin
}

// ParseActorRole converts raw input into an ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
