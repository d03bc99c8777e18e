// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import "encoding/xml"

// The types below mirror the subset of the MyBatis mapper XML grammar
// this runtime supports. encoding/xml's
// struct tags do the grammar-to-tree decoding; SQLNode construction
// happens afterward in the builder, since a <select> body mixes
// character data and dynamic tags in document order, which xml.Decoder
// exposes more naturally as a token stream than as unmarshaled structs
// for the tag bodies themselves.
type xmlMapper struct {
	XMLName    xml.Name           `xml:"mapper"`
	Namespace  string             `xml:"namespace,attr"`
	CacheRef   *xmlCacheRef       `xml:"cache-ref"`
	Cache      *xmlCache          `xml:"cache"`
	ResultMaps []xmlResultMap     `xml:"resultMap"`
	SQLs       []xmlRawFragment   `xml:"sql"`
	Selects    []xmlRawStatement  `xml:"select"`
	Inserts    []xmlRawStatement  `xml:"insert"`
	Updates    []xmlRawStatement  `xml:"update"`
	Deletes    []xmlRawStatement  `xml:"delete"`
}

type xmlCacheRef struct {
	Namespace string `xml:"namespace,attr"`
}

type xmlCache struct {
	Type          string `xml:"type,attr"`
	Size          int    `xml:"size,attr"`
	Eviction      string `xml:"eviction,attr"`
	FlushInterval string `xml:"flushInterval,attr"`
	ReadOnly      string `xml:"readOnly,attr"`
	Blocking      string `xml:"blocking,attr"`
}

// xmlRawFragment / xmlRawStatement keep their bodies as raw inner XML
// (xml:",innerxml") so the builder can re-scan them as a token stream
// to preserve interleaved text and dynamic tags in order.
type xmlRawFragment struct {
	ID    string `xml:"id,attr"`
	Inner string `xml:",innerxml"`
}

type xmlRawStatement struct {
	ID              string `xml:"id,attr"`
	ParameterType   string `xml:"parameterType,attr"`
	ResultType      string `xml:"resultType,attr"`
	ResultMap       string `xml:"resultMap,attr"`
	StatementType   string `xml:"statementType,attr"`
	UseGeneratedKeys string `xml:"useGeneratedKeys,attr"`
	KeyProperty     string `xml:"keyProperty,attr"`
	KeyColumn       string `xml:"keyColumn,attr"`
	FetchSize       string `xml:"fetchSize,attr"`
	Timeout         string `xml:"timeout,attr"`
	FlushCache      string `xml:"flushCache,attr"`
	UseCache        string `xml:"useCache,attr"`
	DatabaseID      string `xml:"databaseId,attr"`
	ResultSets      string `xml:"resultSets,attr"`
	SelectKey       *xmlSelectKey `xml:"selectKey"`
	Inner           string `xml:",innerxml"`
}

// xmlSelectKey mirrors <selectKey>: a nested statement that obtains a
// generated key value before or after the enclosing insert/update runs.
type xmlSelectKey struct {
	KeyProperty   string `xml:"keyProperty,attr"`
	KeyColumn     string `xml:"keyColumn,attr"`
	Order         string `xml:"order,attr"`
	StatementType string `xml:"statementType,attr"`
	ResultType    string `xml:"resultType,attr"`
	Inner         string `xml:",innerxml"`
}

type xmlResultMap struct {
	ID            string             `xml:"id,attr"`
	Type          string             `xml:"type,attr"`
	Extends       string             `xml:"extends,attr"`
	AutoMapping   string             `xml:"autoMapping,attr"`
	IDs           []xmlResultField   `xml:"id"`
	Results       []xmlResultField   `xml:"result"`
	Associations  []xmlAssociation   `xml:"association"`
	Collections   []xmlCollection    `xml:"collection"`
	Constructors  []xmlConstructor   `xml:"constructor"`
	Discriminator *xmlDiscriminator  `xml:"discriminator"`
}

type xmlResultField struct {
	Property    string `xml:"property,attr"`
	Column      string `xml:"column,attr"`
	JavaType    string `xml:"javaType,attr"`
	JdbcType    string `xml:"jdbcType,attr"`
	TypeHandler string `xml:"typeHandler,attr"`
}

type xmlAssociation struct {
	xmlResultField
	ResultMap     string `xml:"resultMap,attr"`
	Select        string `xml:"select,attr"`
	ColumnPrefix  string `xml:"columnPrefix,attr"`
	NotNullColumn string `xml:"notNullColumn,attr"`
	FetchType     string `xml:"fetchType,attr"`
	ResultSet     string `xml:"resultSet,attr"`
	ForeignColumn string `xml:"foreignColumn,attr"`
}

type xmlCollection struct {
	xmlAssociation
	OfType string `xml:"ofType,attr"`
}

type xmlConstructor struct {
	Args []xmlResultField `xml:"idArg"`
	Plain []xmlResultField `xml:"arg"`
}

type xmlDiscriminator struct {
	xmlResultField
	Cases []xmlDiscriminatorCase `xml:"case"`
}

type xmlDiscriminatorCase struct {
	Value     string `xml:"value,attr"`
	ResultMap string `xml:"resultMap,attr"`
}

// xmlConfiguration mirrors the root <configuration> document grammar:
// properties, settings, typeAliases, typeHandlers, the three factory
// hooks, plugins, environments, databaseIdProvider and mappers, in the
// order MyBatis requires them to appear.
type xmlConfiguration struct {
	XMLName              xml.Name              `xml:"configuration"`
	Properties           *xmlProperties        `xml:"properties"`
	Settings             *xmlSettingsDoc       `xml:"settings"`
	TypeAliases          *xmlTypeAliases       `xml:"typeAliases"`
	TypeHandlers         *xmlTypeHandlersDoc   `xml:"typeHandlers"`
	ObjectFactory        *xmlFactoryRef        `xml:"objectFactory"`
	ObjectWrapperFactory *xmlFactoryRef        `xml:"objectWrapperFactory"`
	ReflectorFactory     *xmlFactoryRef        `xml:"reflectorFactory"`
	Plugins              *xmlPlugins           `xml:"plugins"`
	Environments         *xmlEnvironments      `xml:"environments"`
	DatabaseIDProvider   *xmlDatabaseIDProvider `xml:"databaseIdProvider"`
	Mappers              *xmlMappers           `xml:"mappers"`
}

type xmlProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type xmlProperties struct {
	Resource string        `xml:"resource,attr"`
	URL      string        `xml:"url,attr"`
	Entries  []xmlProperty `xml:"property"`
}

type xmlSettingsDoc struct {
	Entries []xmlProperty `xml:"setting"`
}

type xmlTypeAlias struct {
	Alias string `xml:"alias,attr"`
	Type  string `xml:"type,attr"`
}

type xmlTypeAliases struct {
	Entries []xmlTypeAlias `xml:"typeAlias"`
}

type xmlTypeHandlerEntry struct {
	JavaType string `xml:"javaType,attr"`
	JdbcType string `xml:"jdbcType,attr"`
	Handler  string `xml:"handler,attr"`
}

type xmlTypeHandlersDoc struct {
	Entries []xmlTypeHandlerEntry `xml:"typeHandler"`
}

// xmlFactoryRef is the shape shared by <objectFactory>,
// <objectWrapperFactory> and <reflectorFactory>: a type name plus an
// optional property bag.
type xmlFactoryRef struct {
	Type    string        `xml:"type,attr"`
	Entries []xmlProperty `xml:"property"`
}

type xmlPlugin struct {
	Interceptor string        `xml:"interceptor,attr"`
	Entries     []xmlProperty `xml:"property"`
}

type xmlPlugins struct {
	Entries []xmlPlugin `xml:"plugin"`
}

type xmlDataSourceProperty = xmlProperty

type xmlTransactionManager struct {
	Type string `xml:"type,attr"`
}

type xmlDataSource struct {
	Type    string        `xml:"type,attr"`
	Entries []xmlProperty `xml:"property"`
}

func (ds *xmlDataSource) get(name string) string {
	for _, p := range ds.Entries {
		if p.Name == name {
			return p.Value
		}
	}
	return ""
}

type xmlEnvironment struct {
	ID                 string                  `xml:"id,attr"`
	TransactionManager xmlTransactionManager   `xml:"transactionManager"`
	DataSource         xmlDataSource           `xml:"dataSource"`
}

type xmlEnvironments struct {
	Default      string           `xml:"default,attr"`
	Environments []xmlEnvironment `xml:"environment"`
}

type xmlDatabaseIDProvider struct {
	Type    string        `xml:"type,attr"`
	Entries []xmlProperty `xml:"property"`
}

type xmlMapperRef struct {
	Resource string `xml:"resource,attr"`
	URL      string `xml:"url,attr"`
	Class    string `xml:"class,attr"`
}

type xmlMappers struct {
	Entries []xmlMapperRef `xml:"mapper"`
}
