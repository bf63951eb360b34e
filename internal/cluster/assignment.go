package cluster

// Method identifies which rule of the assignment state machine matched.
// The rules are checked in strict priority order; first match wins.
type Method string

const (
	MethodAlreadyAssigned Method = "already_assigned"
	MethodExactURL        Method = "exact_url"
	MethodContentHash     Method = "content_hash"
	MethodSimhash         Method = "simhash"
	MethodNewStory        Method = "new_story"
)

// Assignment is the outcome of clustering one article. StoryID is always
// valid; CreatedStory marks the new-story path and Similarity is only
// meaningful for simhash matches.
type Assignment struct {
	StoryID      int64   `json:"story_id"`
	Method       Method  `json:"method"`
	Similarity   float64 `json:"similarity,omitempty"`
	CreatedStory bool    `json:"created_story"`
}

// ClusterState is the explicit clustered/unclustered state of an article,
// used instead of handing a raw nullable story id around.
type ClusterState struct {
	clustered bool
	storyID   int64
}

func Unclustered() ClusterState {
	return ClusterState{}
}

func Clustered(storyID int64) ClusterState {
	return ClusterState{clustered: true, storyID: storyID}
}

// Story returns the owning story id and whether the article is clustered.
func (s ClusterState) Story() (int64, bool) {
	return s.storyID, s.clustered
}
