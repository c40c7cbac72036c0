package blog

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/bloggy/internal/keys"
	"github.com/jacentio/bloggy/store"
)

const (
	attrPost = "post"
	attrTag  = "tag"
)

type imageRecord struct {
	Src   string `dynamodbav:"src"`
	Alt   string `dynamodbav:"alt"`
	Title string `dynamodbav:"title"`
}

type tagRecord struct {
	Name    string `dynamodbav:"name"`
	Label   string `dynamodbav:"label"`
	Version int64  `dynamodbav:"version"`
}

type postRecord struct {
	Slug      string      `dynamodbav:"slug"`
	Title     string      `dynamodbav:"title"`
	Body      string      `dynamodbav:"body"`
	Published bool        `dynamodbav:"published"`
	Tags      []tagRecord `dynamodbav:"tags"`
	MainImage imageRecord `dynamodbav:"main_image"`
	Created   string      `dynamodbav:"created"`
	Version   int64       `dynamodbav:"version"`
}

// kind is the DynamoDB type a schema field must carry.
type kind int

const (
	kindS kind = iota
	kindN
	kindBOOL
	kindL
	kindM
)

func (k kind) String() string {
	return [...]string{"S", "N", "BOOL", "L", "M"}[k]
}

type field struct {
	kind kind
	// fields describes a nested map (kindM) or every element of a list (kindL).
	fields schema
}

type schema map[string]field

var (
	imageSchema = schema{
		"src":   {kind: kindS},
		"alt":   {kind: kindS},
		"title": {kind: kindS},
	}
	tagSchema = schema{
		"name":    {kind: kindS},
		"label":   {kind: kindS},
		"version": {kind: kindN},
	}
	postSchema = schema{
		"slug":       {kind: kindS},
		"title":      {kind: kindS},
		"body":       {kind: kindS},
		"published":  {kind: kindBOOL},
		"tags":       {kind: kindL, fields: tagSchema},
		"main_image": {kind: kindM, fields: imageSchema},
		"created":    {kind: kindS},
		"version":    {kind: kindN},
	}
	postItemSchema = schema{
		store.AttrPK:      {kind: kindS},
		store.AttrSK:      {kind: kindS},
		store.AttrData:    {kind: kindS},
		store.AttrVersion: {kind: kindN},
		attrPost:          {kind: kindM, fields: postSchema},
	}
	tagItemSchema = schema{
		store.AttrPK:      {kind: kindS},
		store.AttrSK:      {kind: kindS},
		store.AttrData:    {kind: kindS},
		store.AttrVersion: {kind: kindN},
		attrTag:           {kind: kindM, fields: tagSchema},
	}
)

// check reports the first attribute of m that is missing, unknown or of the wrong type.
func (s schema) check(path string, m map[string]types.AttributeValue) error {
	for name := range m {
		if _, ok := s[name]; !ok {
			return fmt.Errorf("%w: unexpected attribute %s%s", ErrMalformedRecord, path, name)
		}
	}

	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		f := s[name]
		v, ok := m[name]
		if !ok {
			return fmt.Errorf("%w: missing attribute %s%s", ErrMalformedRecord, path, name)
		}
		if err := f.check(path+name, v); err != nil {
			return err
		}
	}
	return nil
}

func (f field) check(path string, v types.AttributeValue) error {
	wrongType := func() error {
		return fmt.Errorf("%w: attribute %s is not of type %s", ErrMalformedRecord, path, f.kind)
	}
	switch f.kind {
	case kindS:
		// An empty string may be stored as NULL.
		switch v.(type) {
		case *types.AttributeValueMemberS, *types.AttributeValueMemberNULL:
		default:
			return wrongType()
		}
	case kindN:
		if _, ok := v.(*types.AttributeValueMemberN); !ok {
			return wrongType()
		}
	case kindBOOL:
		if _, ok := v.(*types.AttributeValueMemberBOOL); !ok {
			return wrongType()
		}
	case kindM:
		m, ok := v.(*types.AttributeValueMemberM)
		if !ok {
			return wrongType()
		}
		return f.fields.check(path+".", m.Value)
	case kindL:
		l, ok := v.(*types.AttributeValueMemberL)
		if !ok {
			return wrongType()
		}
		for i, elem := range l.Value {
			m, ok := elem.(*types.AttributeValueMemberM)
			if !ok {
				return fmt.Errorf("%w: attribute %s[%d] is not of type M", ErrMalformedRecord, path, i)
			}
			if err := f.fields.check(fmt.Sprintf("%s[%d].", path, i), m.Value); err != nil {
				return err
			}
		}
	}
	return nil
}

// EncodePost returns the item of post stored under sort key sk. Every item of a post carries
// the same payload and version; only the sort key differs.
func EncodePost(post Post, sk string) (store.Item, error) {
	created := keys.FormatTime(post.Created)

	rec := postRecord{
		Slug:      post.Slug,
		Title:     post.Title,
		Body:      post.Body,
		Published: post.Published,
		Tags:      make([]tagRecord, 0, len(post.Tags)),
		MainImage: imageRecord(post.MainImage),
		Created:   created,
		Version:   post.Version,
	}
	for _, t := range post.Tags {
		rec.Tags = append(rec.Tags, tagRecord(t))
	}

	payload, err := attributevalue.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal post %s: %w", post.Slug, err)
	}

	return store.Item{
		store.AttrPK:      store.StringAttr(keys.PostPK(post.Slug)),
		store.AttrSK:      store.StringAttr(sk),
		store.AttrData:    store.StringAttr(created),
		store.AttrVersion: store.NumberAttr(post.Version),
		attrPost:          payload,
	}, nil
}

// DecodePost reads a post from any of its items.
func DecodePost(item store.Item) (Post, error) {
	if err := postItemSchema.check("", item); err != nil {
		return Post{}, err
	}

	var rec postRecord
	if err := attributevalue.Unmarshal(item[attrPost], &rec); err != nil {
		return Post{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if pk, _ := item.String(store.AttrPK); pk != keys.PostPK(rec.Slug) {
		return Post{}, fmt.Errorf("%w: post %q stored under %q", ErrMalformedRecord, rec.Slug, pk)
	}
	created, err := keys.ParseTime(rec.Created)
	if err != nil {
		return Post{}, fmt.Errorf("%w: created: %v", ErrMalformedRecord, err)
	}

	post := Post{
		Slug:      rec.Slug,
		Title:     rec.Title,
		Body:      rec.Body,
		Published: rec.Published,
		MainImage: Image(rec.MainImage),
		Created:   created,
		Version:   rec.Version,
	}
	for _, t := range rec.Tags {
		post.Tags = append(post.Tags, Tag(t))
	}
	return post, nil
}

// EncodeTag returns the canonical item of tag.
func EncodeTag(tag Tag) (store.Item, error) {
	payload, err := attributevalue.Marshal(tagRecord(tag))
	if err != nil {
		return nil, fmt.Errorf("marshal tag %s: %w", tag.Name, err)
	}
	return store.Item{
		store.AttrPK:      store.StringAttr(keys.TagPK(tag.Name)),
		store.AttrSK:      store.StringAttr(keys.TagSK()),
		store.AttrData:    store.StringAttr(tag.Label),
		store.AttrVersion: store.NumberAttr(tag.Version),
		attrTag:           payload,
	}, nil
}

// DecodeTag reads a tag from its canonical item.
func DecodeTag(item store.Item) (Tag, error) {
	if err := tagItemSchema.check("", item); err != nil {
		return Tag{}, err
	}

	var rec tagRecord
	if err := attributevalue.Unmarshal(item[attrTag], &rec); err != nil {
		return Tag{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if pk, _ := item.String(store.AttrPK); pk != keys.TagPK(rec.Name) {
		return Tag{}, fmt.Errorf("%w: tag %q stored under %q", ErrMalformedRecord, rec.Name, pk)
	}
	return Tag(rec), nil
}

// normalizePost brings a post into its stored form: UTC, microsecond precision,
// a creation time and de-duplicated tags in first-seen order.
func normalizePost(post Post, now time.Time) Post {
	if post.Created.IsZero() {
		post.Created = now
	}
	post.Created = post.Created.UTC().Truncate(time.Microsecond)

	if len(post.Tags) > 0 {
		seen := make(map[string]bool, len(post.Tags))
		tags := make([]Tag, 0, len(post.Tags))
		for _, t := range post.Tags {
			t.Name = strings.TrimSpace(t.Name)
			if t.Name == "" || seen[t.Name] {
				continue
			}
			seen[t.Name] = true
			tags = append(tags, t)
		}
		post.Tags = tags
	}
	if len(post.Tags) == 0 {
		post.Tags = nil
	}
	return post
}
