package catalog

// Permission gates a write (or read) performed through the scripting surface.
type Permission string

const (
	PermReadServer        Permission = "read:server"
	PermWriteServer       Permission = "write:server"
	PermReadNetwork       Permission = "read:network"
	PermReadPower         Permission = "read:power"
	PermWritePower        Permission = "write:power"
	PermReadCooling       Permission = "read:cooling"
	PermWriteCooling      Permission = "write:cooling"
	PermWriteEmployee     Permission = "write:employee"
	PermWritePlayerNotify Permission = "write:player:notify"
	PermWritePlayerAlert  Permission = "write:player:alert"
	PermWriteSystemLog    Permission = "write:system:log"
)

// Permissions lists the full taxonomy in a stable order.
var Permissions = []Permission{
	PermReadServer,
	PermWriteServer,
	PermReadNetwork,
	PermReadPower,
	PermWritePower,
	PermReadCooling,
	PermWriteCooling,
	PermWriteEmployee,
	PermWritePlayerNotify,
	PermWritePlayerAlert,
	PermWriteSystemLog,
}

// ValidPermission reports whether p is part of the taxonomy.
func ValidPermission(p Permission) bool {
	for _, known := range Permissions {
		if p == known {
			return true
		}
	}
	return false
}
