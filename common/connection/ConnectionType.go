package connection

const (
	TypeTCP = iota
	TypeWS
)

func TypeName(connType uint8) string {
	switch connType {
	case TypeTCP:
		return "tcp"
	case TypeWS:
		return "ws"
	}
	return "unknown"
}
