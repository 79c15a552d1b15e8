package alarm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// Key names one logical alarm: a reminder of a task on one occurrence date.
type Key struct {
	TaskID        string `json:"taskId"`
	DateKey       string `json:"date"`
	ReminderIndex int    `json:"reminder"`
}

// ID is the deterministic idempotency key the Timer Service indexes by.
// Fields are NUL-separated before hashing.
func (k Key) ID() string {
	h := sha256.New()
	h.Write([]byte(k.TaskID))
	h.Write([]byte{0})
	h.Write([]byte(k.DateKey))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(k.ReminderIndex)))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

func (k Key) String() string {
	return fmt.Sprintf("%s@%s#%d", k.TaskID, k.DateKey, k.ReminderIndex)
}
