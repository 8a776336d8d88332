package room

import "fmt"

// ErrRoomClosed's text is the reason of the 500 rejection sent for a client
// request submitted to a Room that has already closed. Work that was
// already queued on the Room's actor when it closed is neither run nor
// rejected.
var ErrRoomClosed = fmt.Errorf("room: closed")
