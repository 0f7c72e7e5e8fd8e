package storage

// Stats counts the rows of every graph table
type Stats struct {
	Users       int
	Repos       int
	Languages   int
	Contributes int
	Contains    int
	Knows       int
	CodesIn     int
}

// RankedUser is a user with its computed pagerank
type RankedUser struct {
	Login    string
	PageRank float64
}

// WeightedEdge is a directed, weighted link between two users
type WeightedEdge struct {
	From   string
	To     string
	Weight int
}
