package item

// Topic describes one built-in conversation scenario.
type Topic struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// DefaultTopics are the built-in conversation scenarios.
var DefaultTopics = []Topic{
	{ID: "room_objects", Title: "Room Objects", Summary: "Finding objects in a room."},
	{ID: "food_ordering", Title: "Food Ordering", Summary: "Ordering food and drinks politely."},
	{ID: "campus_life", Title: "Campus Life", Summary: "Talking about classes and schedules."},
}

// TopicByID returns the topic with the given id, or nil.
func TopicByID(id string) *Topic {
	for i := range DefaultTopics {
		if DefaultTopics[i].ID == id {
			return &DefaultTopics[i]
		}
	}
	return nil
}
