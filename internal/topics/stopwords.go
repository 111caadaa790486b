package topics

import "strings"

// englishStopWords is the usual English function-word list.
var englishStopWords = `
a about above after again against all am an and any are aren arent as at
be because been before being below between both but by
can cannot cant could couldnt
did didnt do does doesnt doing dont down during
each few for from further
had hadnt has hasnt have havent having he hed hell hes her here heres hers
herself him himself his how hows
i id ill im ive if in into is isnt it its itself
lets
me more most mustnt my myself
no nor not of off on once only or other ought our ours ourselves out over own
same shant she shed shell shes should shouldnt so some such
than that thats the their theirs them themselves then there theres these they
theyd theyll theyre theyve this those through to too
under until up very
was wasnt we wed well were werent weve what whats when whens where wheres
which while who whos whom why whys with wont would wouldnt
you youd youll youre youve your yours yourself yourselves
`

// domainStopWords is platform jargon and generic filler that dominates
// social-media text without carrying topical signal.
var domainStopWords = `
reddit subreddit post posts posted posting comment comments thread threads
upvote upvotes downvote downvotes karma mod mods moderator op
edit edited update updated deleted removed
just like really thing things stuff know think want get got make made
going go way time people good bad new old use used using
amp gt lt nbsp tldr tl dr
http https com org www
`

var stopWords = buildStopWordSet(englishStopWords, domainStopWords)

func buildStopWordSet(lists ...string) map[string]bool {
	set := make(map[string]bool, 256)
	for _, list := range lists {
		for _, w := range strings.Fields(list) {
			set[w] = true
		}
	}
	return set
}
