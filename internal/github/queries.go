package github

const (
	membersPageSize  = 100
	maxRepositories  = 100
	languagesPerRepo = 3
)

const contributionsQuery = `
query Contributions($login: String!, $maxRepositories: Int!, $languages: Int!) {
  user(login: $login) {
    contributionsCollection {
      commitContributionsByRepository(maxRepositories: $maxRepositories) {
        repository {
          nameWithOwner
          isPrivate
          languages(first: $languages, orderBy: {field: SIZE, direction: DESC}) {
            edges {
              size
              node {
                name
                color
              }
            }
          }
        }
        contributions(first: 1) {
          totalCount
        }
      }
    }
  }
}`

const membersQuery = `
query Members($owner: String!, $name: String!, $first: Int!, $after: String) {
  repository(owner: $owner, name: $name) {
    mentionableUsers(first: $first, after: $after) {
      pageInfo {
        hasNextPage
        endCursor
      }
      nodes {
        login
      }
    }
  }
}`

const rateLimitQuery = `
query RateLimit {
  rateLimit {
    remaining
    resetAt
    limit
  }
}`

func contributionsRequest(login string) Request {
	return Request{
		Name:  "contributions",
		Query: contributionsQuery,
		Variables: map[string]any{
			"login":           login,
			"maxRepositories": maxRepositories,
			"languages":       languagesPerRepo,
		},
	}
}

func membersRequest(owner, name string, after *string) Request {
	vars := map[string]any{
		"owner": owner,
		"name":  name,
		"first": membersPageSize,
		"after": nil,
	}
	if after != nil {
		vars["after"] = *after
	}
	return Request{Name: "members", Query: membersQuery, Variables: vars}
}

func rateLimitRequest() Request {
	return Request{Name: "rateLimit", Query: rateLimitQuery}
}
