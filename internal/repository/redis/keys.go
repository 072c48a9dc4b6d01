package redis

import "fmt"

const ns = "basho:v1"

func KeySlotAvailability(unitID int64) string {
	return fmt.Sprintf("%s:slot:%d:availability", ns, unitID)
}

func KeyExperienceSlots(experienceID int64) string {
	return fmt.Sprintf("%s:experience:%d:slots", ns, experienceID)
}

func KeyWorkshopSlots(workshopID int64) string {
	return fmt.Sprintf("%s:workshop:%d:slots", ns, workshopID)
}

func KeyIdemBooking(idemKey string) string {
	return fmt.Sprintf("%s:idem:bookings:%s", ns, idemKey)
}

func KeyIdemCheckout(idemKey string) string {
	return fmt.Sprintf("%s:idem:orders:%s", ns, idemKey)
}

func ChannelSlotsChanged() string {
	return ns + ":slots:changed"
}
